// Package aggregator is the read side of the pipeline: grouping and
// ranking of accumulated detections. Everything is recomputed on demand
// from the detection store; no caching, no locking.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/golang/geo/s2"

	"marine-scan-pipeline/models"
)

// DefaultWindow is the rolling window for aggregate views.
const DefaultWindow = 7 * 24 * time.Hour

// DefaultHotspotLevel is the S2 cell level used for hotspot clustering.
// Level 10 cells are roughly 80 km², coarse enough to group detections
// from neighboring tiles into one cluster.
const DefaultHotspotLevel = 10

// Registry is the read-only persistence surface the aggregator needs.
type Registry interface {
	GetArea(ctx context.Context, areaID int64) (*models.ScanArea, error)
	GetDetectionsSince(ctx context.Context, cutoff time.Time) ([]*models.PollutionDetection, error)
	GetAreaDetections(ctx context.Context, areaID int64) ([]*models.DetectionWithImage, error)
}

// Aggregator computes area-grouped and cell-grouped detection summaries.
type Aggregator struct {
	registry Registry
	window   time.Duration
}

// New creates a detection aggregator with the given rolling window.
func New(registry Registry, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{registry: registry, window: window}
}

type areaAccumulator struct {
	count         int
	maxRank       int
	totalArea     float64
	confidenceSum float64
	types         map[string]bool
	latest        time.Time
	latSum        float64
	lonSum        float64
}

// AggregateByArea groups detections from the rolling window by area and
// ranks the result by max severity, then by detection count.
func (a *Aggregator) AggregateByArea(ctx context.Context) ([]*models.AreaAggregate, error) {
	detections, err := a.registry.GetDetectionsSince(ctx, time.Now().Add(-a.window))
	if err != nil {
		return nil, err
	}

	accs := make(map[int64]*areaAccumulator)
	for _, det := range detections {
		acc, ok := accs[det.AreaID]
		if !ok {
			acc = &areaAccumulator{types: make(map[string]bool)}
			accs[det.AreaID] = acc
		}
		acc.count++
		if rank := det.Severity.Rank(); rank > acc.maxRank {
			acc.maxRank = rank
		}
		acc.totalArea += det.EstimatedAreaKm2
		acc.confidenceSum += det.Confidence
		acc.types[string(det.PollutionType)] = true
		if det.DetectedAt.After(acc.latest) {
			acc.latest = det.DetectedAt
		}
		lat, lon := det.BBox.Center()
		acc.latSum += lat
		acc.lonSum += lon
	}

	result := make([]*models.AreaAggregate, 0, len(accs))
	for areaID, acc := range accs {
		aggregate := &models.AreaAggregate{
			AreaID:          areaID,
			DetectionCount:  acc.count,
			MaxSeverity:     models.SeverityFromRank(acc.maxRank),
			TotalAreaKm2:    acc.totalArea,
			PollutionTypes:  sortedKeys(acc.types),
			AvgConfidence:   acc.confidenceSum / float64(acc.count),
			LatestDetection: acc.latest,
			CentroidLat:     acc.latSum / float64(acc.count),
			CentroidLon:     acc.lonSum / float64(acc.count),
		}
		if area, err := a.registry.GetArea(ctx, areaID); err != nil {
			log.Warnf("Failed to resolve area %d name: %v", areaID, err)
		} else {
			aggregate.AreaName = area.Name
		}
		result = append(result, aggregate)
	}

	sort.Slice(result, func(i, j int) bool {
		ri, rj := result[i].MaxSeverity.Rank(), result[j].MaxSeverity.Rank()
		if ri != rj {
			return ri > rj
		}
		if result[i].DetectionCount != result[j].DetectionCount {
			return result[i].DetectionCount > result[j].DetectionCount
		}
		return result[i].AreaID < result[j].AreaID
	})
	return result, nil
}

// AreaDetections lists one area's detections with their image
// references. A malformed area identifier yields an empty result, not
// an error; list endpoints degrade rather than propagate parse errors.
func (a *Aggregator) AreaDetections(ctx context.Context, areaID string) ([]*models.DetectionWithImage, error) {
	id, err := strconv.ParseInt(areaID, 10, 64)
	if err != nil || id <= 0 {
		log.Warnf("Rejecting malformed area id %q", areaID)
		return []*models.DetectionWithImage{}, nil
	}
	detections, err := a.registry.GetAreaDetections(ctx, id)
	if err != nil {
		return nil, err
	}
	if detections == nil {
		detections = []*models.DetectionWithImage{}
	}
	return detections, nil
}

// Hotspots clusters the window's detections into S2 cells at the given
// level and reports count and max severity per cell.
func (a *Aggregator) Hotspots(ctx context.Context, level int) ([]*models.Hotspot, error) {
	if level <= 0 || level > 30 {
		level = DefaultHotspotLevel
	}
	detections, err := a.registry.GetDetectionsSince(ctx, time.Now().Add(-a.window))
	if err != nil {
		return nil, err
	}

	cells := make(map[s2.CellID]*models.Hotspot)
	for _, det := range detections {
		lat, lon := det.BBox.Center()
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level)
		spot, ok := cells[cell]
		if !ok {
			center := cell.LatLng()
			spot = &models.Hotspot{
				CellID:    uint64(cell),
				CenterLat: center.Lat.Degrees(),
				CenterLon: center.Lng.Degrees(),
			}
			cells[cell] = spot
		}
		spot.DetectionCount++
		if det.Severity.Rank() > spot.MaxSeverity.Rank() {
			spot.MaxSeverity = det.Severity
		}
	}

	result := make([]*models.Hotspot, 0, len(cells))
	for _, spot := range cells {
		result = append(result, spot)
	}
	sort.Slice(result, func(i, j int) bool {
		ri, rj := result[i].MaxSeverity.Rank(), result[j].MaxSeverity.Rank()
		if ri != rj {
			return ri > rj
		}
		if result[i].DetectionCount != result[j].DetectionCount {
			return result[i].DetectionCount > result[j].DetectionCount
		}
		return result[i].CellID < result[j].CellID
	})
	return result, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
