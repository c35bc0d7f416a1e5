// Package stubimagery is a deterministic, no-network imagery provider
// intended for CI and local end-to-end runs.
package stubimagery

import (
	"context"
	"crypto/sha256"
	"fmt"

	"marine-scan-pipeline/models"
)

// pngHeader makes stub captures look like PNG files to anything that
// sniffs magic bytes.
var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// Client returns deterministic per-tile bytes. FailEvery > 0 injects a
// capture failure on every Nth call so the orchestrator's failure
// isolation can be exercised end to end.
type Client struct {
	FailEvery int
	calls     int
}

func NewClient() *Client { return &Client{} }

func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return "stub-token", nil
}

func (c *Client) Capture(ctx context.Context, token string, bbox models.BBox, target models.PollutionTarget) ([]byte, error) {
	c.calls++
	if c.FailEvery > 0 && c.calls%c.FailEvery == 0 {
		return nil, fmt.Errorf("stub imagery: injected capture failure on call %d", c.calls)
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%f:%f:%f:%f",
		target, bbox.LatMin, bbox.LonMin, bbox.LatMax, bbox.LonMax)))
	return append(append([]byte{}, pngHeader...), sum[:]...), nil
}
