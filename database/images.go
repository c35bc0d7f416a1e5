package database

import (
	"context"
	"fmt"

	"marine-scan-pipeline/models"
)

// InsertCapturedImage persists a captured tile pointer. The unique key on
// (area_id, tile_x, tile_y, captured_at) makes re-capture at the same
// instant a no-op; the returned flag is false for such duplicates.
func (d *Database) InsertCapturedImage(ctx context.Context, img *models.CapturedImage) (bool, error) {
	result, err := d.db.ExecContext(ctx, `INSERT IGNORE
		INTO captured_images (area_id, session_id, tile_x, tile_y,
			lat_min, lon_min, lat_max, lon_max, target, object_key, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.AreaID, img.SessionID, img.TileX, img.TileY,
		img.BBox.LatMin, img.BBox.LonMin, img.BBox.LatMax, img.BBox.LonMax,
		img.Target, img.ObjectKey, img.CapturedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert captured image: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected > 0 {
		id, err := result.LastInsertId()
		if err == nil {
			img.ID = id
		}
	}
	return affected > 0, nil
}

const imageColumns = `id, area_id, session_id, tile_x, tile_y,
	lat_min, lon_min, lat_max, lon_max, target, object_key, captured_at`

// GetRecentImages returns the most recently captured images, newest
// first. The analysis runner over-fetches here before dedup filtering.
func (d *Database) GetRecentImages(ctx context.Context, limit int) ([]*models.CapturedImage, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+imageColumns+`
		FROM captured_images ORDER BY captured_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent images: %w", err)
	}
	defer rows.Close()

	var images []*models.CapturedImage
	for rows.Next() {
		var img models.CapturedImage
		err := rows.Scan(&img.ID, &img.AreaID, &img.SessionID, &img.TileX, &img.TileY,
			&img.BBox.LatMin, &img.BBox.LonMin, &img.BBox.LatMax, &img.BBox.LonMax,
			&img.Target, &img.ObjectKey, &img.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image row: %w", err)
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// GetAnalyzedImageIDs returns the set of image ids that already have an
// analysis history entry. These are excluded from every batch.
func (d *Database) GetAnalyzedImageIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT image_id FROM analysis_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyzed image ids: %w", err)
	}
	defer rows.Close()

	analyzed := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan image id: %w", err)
		}
		analyzed[id] = true
	}
	return analyzed, rows.Err()
}
