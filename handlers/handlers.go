package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"marine-scan-pipeline/analyzer"
	"marine-scan-pipeline/models"
	"marine-scan-pipeline/scanner"
	"marine-scan-pipeline/tiles"
	"marine-scan-pipeline/version"
)

const serviceName = "marine-scan-pipeline"

// Registry is the persistence surface the HTTP handlers need.
type Registry interface {
	CreateArea(ctx context.Context, area *models.ScanArea) (int64, error)
	GetActiveAreas(ctx context.Context) ([]*models.ScanArea, error)
	GetAllAreas(ctx context.Context) ([]*models.ScanArea, error)
	GetArea(ctx context.Context, areaID int64) (*models.ScanArea, error)
	GetLatestSession(ctx context.Context, areaID int64) (*models.ScanSession, error)
	CountAreaImages(ctx context.Context, areaID int64) (int64, error)
	HasRecentCompletedSession(ctx context.Context, areaID int64, window time.Duration) (bool, error)
	GetRecentDetections(ctx context.Context, limit int) ([]*models.PollutionDetection, error)
}

// ScanService triggers a full capture sweep.
type ScanService interface {
	RunFullScan(ctx context.Context) (*scanner.Summary, error)
}

// AnalysisService triggers one analysis batch.
type AnalysisService interface {
	RunBatch(ctx context.Context, limit int) (*analyzer.Summary, error)
}

// AggregationService serves the read-side summaries.
type AggregationService interface {
	AggregateByArea(ctx context.Context) ([]*models.AreaAggregate, error)
	AreaDetections(ctx context.Context, areaID string) ([]*models.DetectionWithImage, error)
	Hotspots(ctx context.Context, level int) ([]*models.Hotspot, error)
}

type Handler struct {
	registry      Registry
	scans         ScanService
	analysis      AnalysisService
	aggregation   AggregationService
	recencyWindow time.Duration
}

func NewHandler(registry Registry, scans ScanService, analysis AnalysisService, aggregation AggregationService, recencyWindow time.Duration) *Handler {
	return &Handler{
		registry:      registry,
		scans:         scans,
		analysis:      analysis,
		aggregation:   aggregation,
		recencyWindow: recencyWindow,
	}
}

// HealthCheck returns a simple health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// Version reports build metadata.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(serviceName))
}

// CreateArea registers a circular scan area and reports how many tiles
// one sweep of it will cover.
func (h *Handler) CreateArea(c *gin.Context) {
	args := &models.CreateAreaRequest{}
	if err := c.ShouldBindJSON(args); err != nil {
		log.Errorf("Failed to parse create-area request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !args.Target.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid target %q", args.Target)})
		return
	}
	if args.RadiusKm <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be positive"})
		return
	}
	if args.CenterLat < -tiles.MaxLatitude || args.CenterLat > tiles.MaxLatitude {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("center_lat must be within ±%.0f", tiles.MaxLatitude)})
		return
	}
	if args.CenterLon < -180 || args.CenterLon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "center coordinates out of range"})
		return
	}

	bbox := tiles.BoundingBox(args.CenterLat, args.CenterLon, args.RadiusKm)
	tilesCount := tiles.Count(bbox)
	if tilesCount <= 0 || tilesCount > tiles.MaxTiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("area spans more than %d tiles, reduce radius_km", tiles.MaxTiles)})
		return
	}
	area := &models.ScanArea{
		Name:      args.Name,
		CenterLat: args.CenterLat,
		CenterLon: args.CenterLon,
		RadiusKm:  args.RadiusKm,
		BBox:      bbox,
		Target:    args.Target,
		Priority:  args.Priority,
		IsActive:  true,
	}
	areaID, err := h.registry.CreateArea(c.Request.Context(), area)
	if err != nil {
		log.Errorf("Failed to create area %q: %v", args.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create area"})
		return
	}

	c.JSON(http.StatusCreated, models.CreateAreaResponse{
		AreaID:     areaID,
		TilesCount: tilesCount,
	})
}

// GetAreas lists active areas with their bboxes as GeoJSON features.
// Pass ?all=true to include deactivated areas.
func (h *Handler) GetAreas(c *gin.Context) {
	var (
		areas []*models.ScanArea
		err   error
	)
	if c.Query("all") == "true" {
		areas, err = h.registry.GetAllAreas(c.Request.Context())
	} else {
		areas, err = h.registry.GetActiveAreas(c.Request.Context())
	}
	if err != nil {
		log.Errorf("Failed to list areas: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list areas"})
		return
	}

	result := make([]models.AreaWithGeometry, 0, len(areas))
	for _, area := range areas {
		result = append(result, withGeometry(area))
	}
	c.JSON(http.StatusOK, gin.H{"areas": result, "count": len(result)})
}

// GetAreaStatus reports scan recency and capture volume for one area.
func (h *Handler) GetAreaStatus(c *gin.Context) {
	areaID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || areaID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid area id"})
		return
	}

	ctx := c.Request.Context()
	area, err := h.registry.GetArea(ctx, areaID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "area not found"})
		return
	}

	status := models.AreaStatus{Area: withGeometry(area)}
	if session, err := h.registry.GetLatestSession(ctx, areaID); err != nil {
		log.Errorf("Failed to get latest session for area %d: %v", areaID, err)
	} else {
		status.LastSession = session
	}
	if count, err := h.registry.CountAreaImages(ctx, areaID); err != nil {
		log.Errorf("Failed to count images for area %d: %v", areaID, err)
	} else {
		status.ImagesCaptured = count
	}
	if recent, err := h.registry.HasRecentCompletedSession(ctx, areaID, h.recencyWindow); err != nil {
		log.Errorf("Failed to check recency for area %d: %v", areaID, err)
	} else {
		status.ScannedToday = recent
	}

	c.JSON(http.StatusOK, status)
}

// TriggerScan runs a full scan synchronously and returns its summary.
// A run already in progress yields 409 instead of a second sweep.
func (h *Handler) TriggerScan(c *gin.Context) {
	summary, err := h.scans.RunFullScan(c.Request.Context())
	if err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "scan already in progress"})
			return
		}
		log.Errorf("Manual scan failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// TriggerAnalysis runs one analysis batch. An optional limit query
// parameter caps the batch size.
func (h *Handler) TriggerAnalysis(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	summary, err := h.analysis.RunBatch(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, analyzer.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "analysis batch already in progress"})
			return
		}
		log.Errorf("Manual analysis failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetDetections lists recent detections with per-type and per-severity
// counts.
func (h *Handler) GetDetections(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	detections, err := h.registry.GetRecentDetections(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("Failed to list detections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list detections"})
		return
	}
	if detections == nil {
		detections = []*models.PollutionDetection{}
	}

	byType := make(map[string]int)
	bySeverity := make(map[string]int)
	for _, det := range detections {
		byType[string(det.PollutionType)]++
		bySeverity[string(det.Severity)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"detections":  detections,
		"count":       len(detections),
		"by_type":     byType,
		"by_severity": bySeverity,
	})
}

// GetAggregated returns the area-grouped, severity-ranked summary.
func (h *Handler) GetAggregated(c *gin.Context) {
	aggregates, err := h.aggregation.AggregateByArea(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to aggregate detections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"areas": aggregates, "count": len(aggregates)})
}

// GetAreaDetections lists one area's detections with image references.
// A malformed id degrades to an empty list.
func (h *Handler) GetAreaDetections(c *gin.Context) {
	detections, err := h.aggregation.AreaDetections(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("Failed to list area detections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detections": detections, "count": len(detections)})
}

// GetHotspots returns S2-cell detection clusters. An optional level
// query parameter picks the cell granularity.
func (h *Handler) GetHotspots(c *gin.Context) {
	level := 0
	if raw := c.Query("level"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "level must be an integer"})
			return
		}
		level = parsed
	}

	hotspots, err := h.aggregation.Hotspots(c.Request.Context(), level)
	if err != nil {
		log.Errorf("Failed to compute hotspots: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute hotspots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hotspots": hotspots, "count": len(hotspots)})
}

func withGeometry(area *models.ScanArea) models.AreaWithGeometry {
	return models.AreaWithGeometry{
		ScanArea: *area,
		Geometry: area.BBox.ToGeoJSON(),
	}
}
