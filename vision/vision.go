// Package vision is the pollution-classification port over captured
// tile imagery.
package vision

import (
	"context"

	"marine-scan-pipeline/models"
	"marine-scan-pipeline/parser"
)

// Analyzer classifies pollution in a single tile image. Implementations
// must return a schema-valid result or an error; results are never
// coerced downstream.
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte, target models.PollutionTarget, bbox models.BBox) (*parser.AnalysisResult, error)
	// SourceName returns a short provider label for logging.
	SourceName() string
}
