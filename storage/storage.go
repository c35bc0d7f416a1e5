// Package storage is the object-store port for captured tile imagery.
package storage

import (
	"context"
	"fmt"
	"time"

	"marine-scan-pipeline/models"
)

// Store persists and retrieves binary blobs by key.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// ObjectKey builds the deterministic storage key for one tile capture:
// <target>/<areaId>/<date>/tile_<x>_<y>.png
func ObjectKey(target models.PollutionTarget, areaID int64, capturedAt time.Time, tileX, tileY int) string {
	return fmt.Sprintf("%s/%d/%s/tile_%d_%d.png",
		target, areaID, capturedAt.UTC().Format("2006-01-02"), tileX, tileY)
}
