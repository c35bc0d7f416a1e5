// Package parser validates the structured JSON the vision analyzer is
// required to return. Non-conforming payloads are a hard failure; nothing
// is coerced or best-effort parsed.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marine-scan-pipeline/models"
)

// AnalysisResult is the strict vision-analysis payload.
type AnalysisResult struct {
	PollutionDetected bool                    `json:"pollution_detected"`
	PollutionType     string                  `json:"pollution_type"`
	ConfidenceScore   float64                 `json:"confidence_score"`
	SeverityLevel     models.Severity         `json:"severity_level"`
	EstimatedAreaKm2  float64                 `json:"estimated_area_km2"`
	Description       string                  `json:"description"`
	AffectedRegions   []models.AffectedRegion `json:"affected_regions"`
	Recommendations   []string                `json:"recommendations"`
}

// ExtractJSONFromMarkdown strips surrounding markdown code fences if the
// model wrapped its JSON in one.
func ExtractJSONFromMarkdown(response string) string {
	const marker = "```"

	startIdx := strings.Index(response, marker)
	if startIdx == -1 {
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	endIdx := strings.Index(response[startIdx+len(marker):], marker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(marker)

	content := response[startIdx+len(marker) : endIdx]

	// Drop the language identifier line if present (e.g. "json").
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseAnalysis parses and validates an analyzer response.
func ParseAnalysis(response string) (*AnalysisResult, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var result AnalysisResult
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if result.ConfidenceScore < 0 || result.ConfidenceScore > 1 {
		return nil, errors.New("confidence_score must be between 0 and 1")
	}
	if result.EstimatedAreaKm2 < 0 {
		return nil, errors.New("estimated_area_km2 must not be negative")
	}

	switch result.PollutionType {
	case "none":
		if result.PollutionDetected {
			return nil, errors.New("pollution_detected is true but pollution_type is none")
		}
	case string(models.TargetOil), string(models.TargetPlastic):
	default:
		return nil, fmt.Errorf("unknown pollution_type %q", result.PollutionType)
	}

	if result.PollutionDetected {
		if !result.SeverityLevel.IsValid() {
			return nil, fmt.Errorf("unknown severity_level %q", result.SeverityLevel)
		}
		if result.Description == "" {
			return nil, errors.New("description is required for a positive detection")
		}
		for _, region := range result.AffectedRegions {
			if region.Width <= 0 || region.Height <= 0 {
				return nil, errors.New("affected_regions entries must have positive width and height")
			}
		}
	}

	return &result, nil
}
