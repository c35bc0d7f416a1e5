package models

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// PollutionTarget is the kind of pollution an area is scanned for.
type PollutionTarget string

const (
	TargetOil     PollutionTarget = "oil"
	TargetPlastic PollutionTarget = "plastic"
)

// IsValid reports whether the target is one of the supported values.
func (t PollutionTarget) IsValid() bool {
	return t == TargetOil || t == TargetPlastic
}

// Status values shared by scan sessions and analysis jobs.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Severity is a discrete pollution severity band.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity band to its ordinal, low=1 through critical=4.
// Unknown labels rank 0 so they sort below every real band.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// IsValid reports whether the severity is one of the four bands.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// SeverityFromRank is the inverse of Rank.
func SeverityFromRank(rank int) Severity {
	switch rank {
	case 1:
		return SeverityLow
	case 2:
		return SeverityMedium
	case 3:
		return SeverityHigh
	case 4:
		return SeverityCritical
	}
	return ""
}

// SeverityForArea bands an estimated affected area in km²:
// <5 low, 5-20 medium, 20-50 high, >50 critical.
func SeverityForArea(areaKm2 float64) Severity {
	switch {
	case areaKm2 < 5:
		return SeverityLow
	case areaKm2 < 20:
		return SeverityMedium
	case areaKm2 < 50:
		return SeverityHigh
	}
	return SeverityCritical
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	LatMin float64 `json:"lat_min"`
	LonMin float64 `json:"lon_min"`
	LatMax float64 `json:"lat_max"`
	LonMax float64 `json:"lon_max"`
}

// Center returns the midpoint of the box.
func (b BBox) Center() (lat, lon float64) {
	return (b.LatMin + b.LatMax) / 2, (b.LonMin + b.LonMax) / 2
}

// ToGeoJSON renders the box as a GeoJSON polygon feature, closed ring,
// counter-clockwise from the southwest corner.
func (b BBox) ToGeoJSON() *geojson.Feature {
	ring := [][]float64{
		{b.LonMin, b.LatMin},
		{b.LonMax, b.LatMin},
		{b.LonMax, b.LatMax},
		{b.LonMin, b.LatMax},
		{b.LonMin, b.LatMin},
	}
	return geojson.NewPolygonFeature([][][]float64{ring})
}

// Tile is one fixed-size subdivision of an area's bounding box. Tiles are
// ephemeral value objects; only their coordinates are persisted, via
// CapturedImage.
type Tile struct {
	X    int  `json:"x"`
	Y    int  `json:"y"`
	BBox BBox `json:"bbox"`
}

// ScanArea is a registered circular region of interest.
type ScanArea struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	CenterLat float64         `json:"center_lat"`
	CenterLon float64         `json:"center_lon"`
	RadiusKm  float64         `json:"radius_km"`
	BBox      BBox            `json:"bbox"`
	Target    PollutionTarget `json:"target"`
	Priority  int             `json:"priority"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// ScanSession is one attempt to capture imagery for every tile of one area.
type ScanSession struct {
	ID             int64      `json:"id"`
	AreaID         int64      `json:"area_id"`
	TotalTiles     int        `json:"total_tiles"`
	ProcessedTiles int        `json:"processed_tiles"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// CapturedImage is a persisted pointer to one tile image in object storage.
type CapturedImage struct {
	ID         int64           `json:"id"`
	AreaID     int64           `json:"area_id"`
	SessionID  int64           `json:"session_id"`
	TileX      int             `json:"tile_x"`
	TileY      int             `json:"tile_y"`
	BBox       BBox            `json:"bbox"`
	Target     PollutionTarget `json:"target"`
	ObjectKey  string          `json:"object_key"`
	CapturedAt time.Time       `json:"captured_at"`
}

// AnalysisJob is one batch attempt to analyze captured images.
type AnalysisJob struct {
	ID              int64      `json:"id"`
	TotalImages     int        `json:"total_images"`
	AnalyzedImages  int        `json:"analyzed_images"`
	DetectionsFound int        `json:"detections_found"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// AnalysisHistoryEntry is the dedup ledger: one row per analyzed image,
// written regardless of whether pollution was found.
type AnalysisHistoryEntry struct {
	ID                int64     `json:"id"`
	ImageID           int64     `json:"image_id"`
	AreaID            int64     `json:"area_id"`
	ObjectKey         string    `json:"object_key"`
	PollutionDetected bool      `json:"pollution_detected"`
	RawResult         string    `json:"raw_result"`
	JobID             int64     `json:"job_id"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// AffectedRegion is a pixel-space rectangle inside an analyzed image.
type AffectedRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PollutionDetection is a persisted positive finding for one image/tile.
type PollutionDetection struct {
	ID               int64            `json:"id"`
	ImageID          int64            `json:"image_id"`
	AreaID           int64            `json:"area_id"`
	TileX            int              `json:"tile_x"`
	TileY            int              `json:"tile_y"`
	PollutionType    PollutionTarget  `json:"pollution_type"`
	Confidence       float64          `json:"confidence"`
	Severity         Severity         `json:"severity"`
	EstimatedAreaKm2 float64          `json:"estimated_area_km2"`
	Description      string           `json:"description"`
	AffectedRegions  []AffectedRegion `json:"affected_regions,omitempty"`
	BBox             BBox             `json:"bbox"`
	DetectedAt       time.Time        `json:"detected_at"`
	Verified         bool             `json:"verified"`
}

// CreateAreaRequest is the POST /areas payload.
type CreateAreaRequest struct {
	Name      string          `json:"name" binding:"required"`
	CenterLat float64         `json:"center_lat"`
	CenterLon float64         `json:"center_lon"`
	RadiusKm  float64         `json:"radius_km" binding:"required"`
	Target    PollutionTarget `json:"target" binding:"required"`
	Priority  int             `json:"priority"`
}

// CreateAreaResponse is returned from POST /areas.
type CreateAreaResponse struct {
	AreaID     int64 `json:"area_id"`
	TilesCount int   `json:"tiles_count"`
}

// AreaWithGeometry decorates an area with its bbox as a GeoJSON feature.
type AreaWithGeometry struct {
	ScanArea
	Geometry *geojson.Feature `json:"geometry"`
}

// AreaStatus is the recency and image-count summary for one area.
type AreaStatus struct {
	Area           AreaWithGeometry `json:"area"`
	LastSession    *ScanSession     `json:"last_session,omitempty"`
	ImagesCaptured int64            `json:"images_captured"`
	ScannedToday   bool             `json:"scanned_today"`
}

// AreaAggregate is one row of the area-grouped, severity-ranked summary.
type AreaAggregate struct {
	AreaID          int64     `json:"area_id"`
	AreaName        string    `json:"area_name"`
	DetectionCount  int       `json:"detection_count"`
	MaxSeverity     Severity  `json:"max_severity"`
	TotalAreaKm2    float64   `json:"total_area_km2"`
	PollutionTypes  []string  `json:"pollution_types"`
	AvgConfidence   float64   `json:"avg_confidence"`
	LatestDetection time.Time `json:"latest_detection"`
	CentroidLat     float64   `json:"centroid_lat"`
	CentroidLon     float64   `json:"centroid_lon"`
}

// DetectionWithImage joins a detection to its analysis history entry, for
// per-area listings that need the storage key and capture time.
type DetectionWithImage struct {
	PollutionDetection
	ObjectKey  string    `json:"object_key"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Hotspot is an S2-cell cluster of detections.
type Hotspot struct {
	CellID         uint64   `json:"cell_id"`
	CenterLat      float64  `json:"center_lat"`
	CenterLon      float64  `json:"center_lon"`
	DetectionCount int      `json:"detection_count"`
	MaxSeverity    Severity `json:"max_severity"`
}
