package parser

import (
	"testing"

	"marine-scan-pipeline/models"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *AnalysisResult
	}{
		{
			name: "valid positive detection",
			response: `{
				"pollution_detected": true,
				"pollution_type": "oil",
				"confidence_score": 0.87,
				"severity_level": "high",
				"estimated_area_km2": 30.0,
				"description": "Dark slick with characteristic rainbow sheen trailing southwest from the tile center.",
				"affected_regions": [{"x": 120, "y": 40, "width": 300, "height": 180}],
				"recommendations": ["Dispatch aerial verification", "Notify coastal authority"]
			}`,
			wantErr: false,
			expected: &AnalysisResult{
				PollutionDetected: true,
				PollutionType:     "oil",
				ConfidenceScore:   0.87,
				SeverityLevel:     models.SeverityHigh,
				EstimatedAreaKm2:  30.0,
				Description:       "Dark slick with characteristic rainbow sheen trailing southwest from the tile center.",
				AffectedRegions:   []models.AffectedRegion{{X: 120, Y: 40, Width: 300, Height: 180}},
				Recommendations:   []string{"Dispatch aerial verification", "Notify coastal authority"},
			},
		},
		{
			name: "valid negative result",
			response: `{
				"pollution_detected": false,
				"pollution_type": "none",
				"confidence_score": 0.95,
				"severity_level": "low",
				"estimated_area_km2": 0,
				"description": "Open water, no anomalies.",
				"affected_regions": [],
				"recommendations": []
			}`,
			wantErr: false,
			expected: &AnalysisResult{
				PollutionDetected: false,
				PollutionType:     "none",
				ConfidenceScore:   0.95,
				SeverityLevel:     models.SeverityLow,
				Description:       "Open water, no anomalies.",
				AffectedRegions:   []models.AffectedRegion{},
				Recommendations:   []string{},
			},
		},
		{
			name: "markdown wrapped JSON",
			response: "```json\n" + `{
				"pollution_detected": true,
				"pollution_type": "plastic",
				"confidence_score": 0.7,
				"severity_level": "medium",
				"estimated_area_km2": 8.2,
				"description": "Floating debris field.",
				"affected_regions": [],
				"recommendations": ["Schedule cleanup survey"]
			}` + "\n```",
			wantErr: false,
			expected: &AnalysisResult{
				PollutionDetected: true,
				PollutionType:     "plastic",
				ConfidenceScore:   0.7,
				SeverityLevel:     models.SeverityMedium,
				EstimatedAreaKm2:  8.2,
				Description:       "Floating debris field.",
				AffectedRegions:   []models.AffectedRegion{},
				Recommendations:   []string{"Schedule cleanup survey"},
			},
		},
		{
			name:     "not JSON at all",
			response: "I could not find any pollution in this image.",
			wantErr:  true,
		},
		{
			name: "confidence out of range",
			response: `{
				"pollution_detected": true,
				"pollution_type": "oil",
				"confidence_score": 1.4,
				"severity_level": "low",
				"estimated_area_km2": 1,
				"description": "x"
			}`,
			wantErr: true,
		},
		{
			name: "unknown pollution type",
			response: `{
				"pollution_detected": true,
				"pollution_type": "chemical",
				"confidence_score": 0.8,
				"severity_level": "low",
				"estimated_area_km2": 1,
				"description": "x"
			}`,
			wantErr: true,
		},
		{
			name: "unknown severity label",
			response: `{
				"pollution_detected": true,
				"pollution_type": "oil",
				"confidence_score": 0.8,
				"severity_level": "catastrophic",
				"estimated_area_km2": 1,
				"description": "x"
			}`,
			wantErr: true,
		},
		{
			name: "detected but type none",
			response: `{
				"pollution_detected": true,
				"pollution_type": "none",
				"confidence_score": 0.8,
				"severity_level": "low",
				"estimated_area_km2": 1,
				"description": "x"
			}`,
			wantErr: true,
		},
		{
			name: "missing description on detection",
			response: `{
				"pollution_detected": true,
				"pollution_type": "plastic",
				"confidence_score": 0.8,
				"severity_level": "low",
				"estimated_area_km2": 1
			}`,
			wantErr: true,
		},
		{
			name: "degenerate affected region",
			response: `{
				"pollution_detected": true,
				"pollution_type": "plastic",
				"confidence_score": 0.8,
				"severity_level": "low",
				"estimated_area_km2": 1,
				"description": "x",
				"affected_regions": [{"x": 0, "y": 0, "width": 0, "height": 10}]
			}`,
			wantErr: true,
		},
		{
			name: "negative estimated area",
			response: `{
				"pollution_detected": false,
				"pollution_type": "none",
				"confidence_score": 0.5,
				"severity_level": "low",
				"estimated_area_km2": -2,
				"description": "x"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got result %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.PollutionDetected != tt.expected.PollutionDetected ||
				got.PollutionType != tt.expected.PollutionType ||
				got.ConfidenceScore != tt.expected.ConfidenceScore ||
				got.SeverityLevel != tt.expected.SeverityLevel ||
				got.EstimatedAreaKm2 != tt.expected.EstimatedAreaKm2 ||
				got.Description != tt.expected.Description {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
			if len(got.AffectedRegions) != len(tt.expected.AffectedRegions) {
				t.Errorf("affected_regions length = %d, want %d",
					len(got.AffectedRegions), len(tt.expected.AffectedRegions))
			}
			if len(got.Recommendations) != len(tt.expected.Recommendations) {
				t.Errorf("recommendations length = %d, want %d",
					len(got.Recommendations), len(tt.expected.Recommendations))
			}
		})
	}
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain JSON", `{"a": 1}`, `{"a": 1}`},
		{"fenced with language", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced without language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounded by prose", "Here you go: {\"a\": 1} hope that helps", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONFromMarkdown(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
