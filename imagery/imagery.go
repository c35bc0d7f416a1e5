// Package imagery is the satellite-imagery port. The provider is
// authenticated once per orchestrator run; the resulting token is reused
// for every tile capture in that run.
package imagery

import (
	"context"

	"marine-scan-pipeline/models"
)

// Provider acquires satellite imagery for tile bounding boxes.
type Provider interface {
	// Authenticate obtains an access token. Called once per scan run.
	Authenticate(ctx context.Context) (string, error)
	// Capture requests an image for the bbox, rendered for the target
	// pollution type (band combination differs between oil and plastic).
	Capture(ctx context.Context, token string, bbox models.BBox, target models.PollutionTarget) ([]byte, error)
}
