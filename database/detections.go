package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marine-scan-pipeline/models"
)

// InsertDetection persists a positive pollution finding.
func (d *Database) InsertDetection(ctx context.Context, det *models.PollutionDetection) error {
	regions, err := json.Marshal(det.AffectedRegions)
	if err != nil {
		return fmt.Errorf("failed to marshal affected regions: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO pollution_detections (image_id, area_id, tile_x, tile_y,
			pollution_type, confidence, severity, estimated_area_km2,
			description, affected_regions, lat_min, lon_min, lat_max, lon_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		det.ImageID, det.AreaID, det.TileX, det.TileY,
		det.PollutionType, det.Confidence, det.Severity, det.EstimatedAreaKm2,
		det.Description, string(regions),
		det.BBox.LatMin, det.BBox.LonMin, det.BBox.LatMax, det.BBox.LonMax)
	if err != nil {
		return fmt.Errorf("failed to insert detection for image %d: %w", det.ImageID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		det.ID = id
	}
	return nil
}

const detectionColumns = `id, image_id, area_id, tile_x, tile_y,
	pollution_type, confidence, severity, estimated_area_km2,
	description, affected_regions, lat_min, lon_min, lat_max, lon_max,
	detected_at, verified`

func scanDetection(rows *sql.Rows) (*models.PollutionDetection, error) {
	var det models.PollutionDetection
	var description sql.NullString
	var regions sql.NullString
	err := rows.Scan(&det.ID, &det.ImageID, &det.AreaID, &det.TileX, &det.TileY,
		&det.PollutionType, &det.Confidence, &det.Severity, &det.EstimatedAreaKm2,
		&description, &regions,
		&det.BBox.LatMin, &det.BBox.LonMin, &det.BBox.LatMax, &det.BBox.LonMax,
		&det.DetectedAt, &det.Verified)
	if err != nil {
		return nil, err
	}
	det.Description = description.String
	if regions.Valid && regions.String != "" {
		if err := json.Unmarshal([]byte(regions.String), &det.AffectedRegions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal affected regions for detection %d: %w", det.ID, err)
		}
	}
	return &det, nil
}

func (d *Database) queryDetections(ctx context.Context, query string, args ...any) ([]*models.PollutionDetection, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []*models.PollutionDetection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection row: %w", err)
		}
		detections = append(detections, det)
	}
	return detections, rows.Err()
}

// GetRecentDetections returns the newest detections, capped at limit.
func (d *Database) GetRecentDetections(ctx context.Context, limit int) ([]*models.PollutionDetection, error) {
	return d.queryDetections(ctx, `SELECT `+detectionColumns+`
		FROM pollution_detections ORDER BY detected_at DESC, id DESC LIMIT ?`, limit)
}

// GetDetectionsSince returns every detection observed after the cutoff.
// The aggregator feeds on this for its rolling-window computations.
func (d *Database) GetDetectionsSince(ctx context.Context, cutoff time.Time) ([]*models.PollutionDetection, error) {
	return d.queryDetections(ctx, `SELECT `+detectionColumns+`
		FROM pollution_detections WHERE detected_at > ?
		ORDER BY detected_at DESC, id DESC`, cutoff)
}

// GetAreaDetections lists all detections for one area joined against the
// analysis history to recover storage keys and analysis timestamps.
func (d *Database) GetAreaDetections(ctx context.Context, areaID int64) ([]*models.DetectionWithImage, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT
			pd.id, pd.image_id, pd.area_id, pd.tile_x, pd.tile_y,
			pd.pollution_type, pd.confidence, pd.severity, pd.estimated_area_km2,
			pd.description, pd.affected_regions,
			pd.lat_min, pd.lon_min, pd.lat_max, pd.lon_max,
			pd.detected_at, pd.verified,
			ah.object_key, ah.analyzed_at
		FROM pollution_detections pd
		JOIN analysis_history ah ON ah.image_id = pd.image_id
		WHERE pd.area_id = ?
		ORDER BY pd.detected_at DESC, pd.id DESC`, areaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections for area %d: %w", areaID, err)
	}
	defer rows.Close()

	var result []*models.DetectionWithImage
	for rows.Next() {
		var item models.DetectionWithImage
		var description sql.NullString
		var regions sql.NullString
		err := rows.Scan(&item.ID, &item.ImageID, &item.AreaID, &item.TileX, &item.TileY,
			&item.PollutionType, &item.Confidence, &item.Severity, &item.EstimatedAreaKm2,
			&description, &regions,
			&item.BBox.LatMin, &item.BBox.LonMin, &item.BBox.LatMax, &item.BBox.LonMax,
			&item.DetectedAt, &item.Verified,
			&item.ObjectKey, &item.AnalyzedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan area detection row: %w", err)
		}
		item.Description = description.String
		if regions.Valid && regions.String != "" {
			if err := json.Unmarshal([]byte(regions.String), &item.AffectedRegions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal affected regions for detection %d: %w", item.ID, err)
			}
		}
		result = append(result, &item)
	}
	return result, rows.Err()
}
