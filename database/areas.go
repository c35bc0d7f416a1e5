package database

import (
	"context"
	"fmt"

	"marine-scan-pipeline/models"
)

// CreateArea inserts a registered scan area and returns its id.
func (d *Database) CreateArea(ctx context.Context, area *models.ScanArea) (int64, error) {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO scan_areas (name, center_lat, center_lon, radius_km,
			lat_min, lon_min, lat_max, lon_max, target, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		area.Name, area.CenterLat, area.CenterLon, area.RadiusKm,
		area.BBox.LatMin, area.BBox.LonMin, area.BBox.LatMax, area.BBox.LonMax,
		area.Target, area.Priority, area.IsActive)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan area: %w", err)
	}
	return result.LastInsertId()
}

const areaColumns = `id, name, center_lat, center_lon, radius_km,
	lat_min, lon_min, lat_max, lon_max, target, priority, is_active, created_at`

func scanArea(row interface{ Scan(...any) error }) (*models.ScanArea, error) {
	var area models.ScanArea
	err := row.Scan(&area.ID, &area.Name, &area.CenterLat, &area.CenterLon, &area.RadiusKm,
		&area.BBox.LatMin, &area.BBox.LonMin, &area.BBox.LatMax, &area.BBox.LonMax,
		&area.Target, &area.Priority, &area.IsActive, &area.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// GetActiveAreas returns active areas ordered by priority, highest first.
func (d *Database) GetActiveAreas(ctx context.Context) ([]*models.ScanArea, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+areaColumns+`
		FROM scan_areas WHERE is_active = true
		ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active areas: %w", err)
	}
	defer rows.Close()

	var areas []*models.ScanArea
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan area row: %w", err)
		}
		areas = append(areas, area)
	}
	return areas, rows.Err()
}

// GetAllAreas returns every registered area, active or not, ordered by
// priority, highest first.
func (d *Database) GetAllAreas(ctx context.Context) ([]*models.ScanArea, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+areaColumns+`
		FROM scan_areas ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query areas: %w", err)
	}
	defer rows.Close()

	var areas []*models.ScanArea
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan area row: %w", err)
		}
		areas = append(areas, area)
	}
	return areas, rows.Err()
}

// GetArea returns one area by id.
func (d *Database) GetArea(ctx context.Context, areaID int64) (*models.ScanArea, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+areaColumns+`
		FROM scan_areas WHERE id = ?`, areaID)
	area, err := scanArea(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get area %d: %w", areaID, err)
	}
	return area, nil
}

// SetAreaActive flips the only mutable field of a scanned area.
func (d *Database) SetAreaActive(ctx context.Context, areaID int64, active bool) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE scan_areas SET is_active = ? WHERE id = ?`, active, areaID)
	if err != nil {
		return fmt.Errorf("failed to update area %d: %w", areaID, err)
	}
	return nil
}

// CountAreaImages returns how many tile images were captured for an area.
func (d *Database) CountAreaImages(ctx context.Context, areaID int64) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM captured_images WHERE area_id = ?`, areaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count images for area %d: %w", areaID, err)
	}
	return count, nil
}
