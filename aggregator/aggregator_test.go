package aggregator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marine-scan-pipeline/models"
)

type fakeRegistry struct {
	areas      map[int64]*models.ScanArea
	detections []*models.PollutionDetection
	byArea     map[int64][]*models.DetectionWithImage
	sinceErr   error
}

func (f *fakeRegistry) GetArea(ctx context.Context, areaID int64) (*models.ScanArea, error) {
	area, ok := f.areas[areaID]
	if !ok {
		return nil, fmt.Errorf("area %d not found", areaID)
	}
	return area, nil
}

func (f *fakeRegistry) GetDetectionsSince(ctx context.Context, cutoff time.Time) ([]*models.PollutionDetection, error) {
	if f.sinceErr != nil {
		return nil, f.sinceErr
	}
	var out []*models.PollutionDetection
	for _, det := range f.detections {
		if det.DetectedAt.After(cutoff) {
			out = append(out, det)
		}
	}
	return out, nil
}

func (f *fakeRegistry) GetAreaDetections(ctx context.Context, areaID int64) ([]*models.DetectionWithImage, error) {
	return f.byArea[areaID], nil
}

func detection(areaID int64, target models.PollutionTarget, severity models.Severity, areaKm2, confidence, lat, lon float64, at time.Time) *models.PollutionDetection {
	half := 0.01
	return &models.PollutionDetection{
		AreaID:           areaID,
		PollutionType:    target,
		Confidence:       confidence,
		Severity:         severity,
		EstimatedAreaKm2: areaKm2,
		BBox: models.BBox{
			LatMin: lat - half, LatMax: lat + half,
			LonMin: lon - half, LonMax: lon + half,
		},
		DetectedAt: at,
	}
}

func TestAggregateByArea(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{
		areas: map[int64]*models.ScanArea{
			1: {ID: 1, Name: "Gulf Shelf"},
			2: {ID: 2, Name: "Channel West"},
		},
		detections: []*models.PollutionDetection{
			detection(1, models.TargetOil, models.SeverityLow, 2.0, 0.8, 10.0, 20.0, now.Add(-time.Hour)),
			detection(1, models.TargetPlastic, models.SeverityHigh, 30.0, 0.6, 10.2, 20.2, now.Add(-2*time.Hour)),
			detection(2, models.TargetOil, models.SeverityCritical, 80.0, 0.9, -5.0, 100.0, now.Add(-time.Hour)),
			// outside the window, must be ignored
			detection(1, models.TargetOil, models.SeverityCritical, 500.0, 0.9, 10.0, 20.0, now.Add(-30*24*time.Hour)),
		},
	}
	agg := New(registry, DefaultWindow)

	result, err := agg.AggregateByArea(context.Background())
	if err != nil {
		t.Fatalf("AggregateByArea: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(result))
	}

	// Critical outranks high regardless of count.
	if result[0].AreaID != 2 || result[0].MaxSeverity != models.SeverityCritical {
		t.Errorf("expected area 2 critical first, got area %d %s", result[0].AreaID, result[0].MaxSeverity)
	}
	if result[0].AreaName != "Channel West" {
		t.Errorf("expected resolved area name, got %q", result[0].AreaName)
	}

	area1 := result[1]
	if area1.DetectionCount != 2 {
		t.Errorf("expected 2 detections for area 1, got %d", area1.DetectionCount)
	}
	if area1.MaxSeverity != models.SeverityHigh {
		t.Errorf("expected high max severity, got %s", area1.MaxSeverity)
	}
	if area1.TotalAreaKm2 != 32.0 {
		t.Errorf("expected total area 32.0, got %f", area1.TotalAreaKm2)
	}
	if len(area1.PollutionTypes) != 2 {
		t.Errorf("expected 2 distinct types, got %v", area1.PollutionTypes)
	}
	if diff := area1.AvgConfidence - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg confidence 0.7, got %f", area1.AvgConfidence)
	}
	if diff := area1.CentroidLat - 10.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected centroid lat 10.1, got %f", area1.CentroidLat)
	}
	if !area1.LatestDetection.Equal(now.Add(-time.Hour)) {
		t.Errorf("expected latest detection one hour ago, got %v", area1.LatestDetection)
	}
}

func TestAggregateTiesBreakOnCount(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{
		areas: map[int64]*models.ScanArea{1: {ID: 1}, 2: {ID: 2}},
		detections: []*models.PollutionDetection{
			detection(1, models.TargetOil, models.SeverityMedium, 10, 0.7, 0, 0, now.Add(-time.Hour)),
			detection(2, models.TargetOil, models.SeverityMedium, 10, 0.7, 0, 0, now.Add(-time.Hour)),
			detection(2, models.TargetOil, models.SeverityMedium, 10, 0.7, 0, 0, now.Add(-time.Hour)),
		},
	}
	result, err := New(registry, DefaultWindow).AggregateByArea(context.Background())
	if err != nil {
		t.Fatalf("AggregateByArea: %v", err)
	}
	if result[0].AreaID != 2 {
		t.Errorf("expected area 2 first on count tiebreak, got %d", result[0].AreaID)
	}
}

func TestAreaDetectionsMalformedID(t *testing.T) {
	agg := New(&fakeRegistry{}, DefaultWindow)
	for _, id := range []string{"abc", "", "-3", "0", "12.5"} {
		result, err := agg.AreaDetections(context.Background(), id)
		if err != nil {
			t.Errorf("id %q: unexpected error %v", id, err)
		}
		if len(result) != 0 {
			t.Errorf("id %q: expected empty result, got %d entries", id, len(result))
		}
	}
}

func TestAreaDetectionsPassthrough(t *testing.T) {
	registry := &fakeRegistry{
		byArea: map[int64][]*models.DetectionWithImage{
			7: {{ObjectKey: "oil/7/2026-08-30/tile_1_2.png"}},
		},
	}
	agg := New(registry, DefaultWindow)
	result, err := agg.AreaDetections(context.Background(), "7")
	if err != nil {
		t.Fatalf("AreaDetections: %v", err)
	}
	if len(result) != 1 || result[0].ObjectKey != "oil/7/2026-08-30/tile_1_2.png" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestHotspotsClusterNearbyDetections(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{
		areas: map[int64]*models.ScanArea{1: {ID: 1}},
		detections: []*models.PollutionDetection{
			// two detections ~1 km apart share a level-10 cell
			detection(1, models.TargetOil, models.SeverityLow, 2, 0.8, 40.0, 5.0, now.Add(-time.Hour)),
			detection(1, models.TargetOil, models.SeverityHigh, 25, 0.9, 40.009, 5.0, now.Add(-time.Hour)),
			// far away, separate cell
			detection(1, models.TargetPlastic, models.SeverityMedium, 8, 0.7, -20.0, 150.0, now.Add(-time.Hour)),
		},
	}
	spots, err := New(registry, DefaultWindow).Hotspots(context.Background(), DefaultHotspotLevel)
	if err != nil {
		t.Fatalf("Hotspots: %v", err)
	}
	if len(spots) != 2 {
		t.Fatalf("expected 2 hotspots, got %d", len(spots))
	}
	if spots[0].MaxSeverity != models.SeverityHigh || spots[0].DetectionCount != 2 {
		t.Errorf("expected clustered hotspot first with high severity and 2 detections, got %+v", spots[0])
	}
	if spots[1].MaxSeverity != models.SeverityMedium {
		t.Errorf("expected medium hotspot second, got %+v", spots[1])
	}
}
