package database

import (
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the pipeline tables if they don't exist.
func InitSchema(d *Database) error {
	log.Info("Initializing marine-scan database schema...")

	tables := []struct {
		name string
		ddl  string
	}{
		{"scan_areas", `
	CREATE TABLE IF NOT EXISTS scan_areas(
		id INT NOT NULL AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		center_lat DOUBLE NOT NULL,
		center_lon DOUBLE NOT NULL,
		radius_km DOUBLE NOT NULL,
		lat_min DOUBLE NOT NULL,
		lon_min DOUBLE NOT NULL,
		lat_max DOUBLE NOT NULL,
		lon_max DOUBLE NOT NULL,
		target ENUM('oil', 'plastic') NOT NULL,
		priority INT NOT NULL DEFAULT 0,
		is_active BOOL NOT NULL DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX is_active_index (is_active),
		INDEX priority_index (priority)
	)`},
		{"scan_sessions", `
	CREATE TABLE IF NOT EXISTS scan_sessions(
		id INT NOT NULL AUTO_INCREMENT,
		area_id INT NOT NULL,
		total_tiles INT NOT NULL,
		processed_tiles INT NOT NULL DEFAULT 0,
		status ENUM('running', 'completed', 'failed') NOT NULL DEFAULT 'running',
		error_message TEXT,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		PRIMARY KEY (id),
		INDEX area_id_index (area_id),
		INDEX status_index (status)
	)`},
		{"captured_images", `
	CREATE TABLE IF NOT EXISTS captured_images(
		id INT NOT NULL AUTO_INCREMENT,
		area_id INT NOT NULL,
		session_id INT NOT NULL,
		tile_x INT NOT NULL,
		tile_y INT NOT NULL,
		lat_min DOUBLE NOT NULL,
		lon_min DOUBLE NOT NULL,
		lat_max DOUBLE NOT NULL,
		lon_max DOUBLE NOT NULL,
		target ENUM('oil', 'plastic') NOT NULL,
		object_key VARCHAR(512) NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_capture (area_id, tile_x, tile_y, captured_at),
		INDEX session_id_index (session_id),
		INDEX captured_at_index (captured_at)
	)`},
		{"analysis_jobs", `
	CREATE TABLE IF NOT EXISTS analysis_jobs(
		id INT NOT NULL AUTO_INCREMENT,
		total_images INT NOT NULL,
		analyzed_images INT NOT NULL DEFAULT 0,
		detections_found INT NOT NULL DEFAULT 0,
		status ENUM('running', 'completed', 'failed') NOT NULL DEFAULT 'running',
		error_message TEXT,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		PRIMARY KEY (id),
		INDEX status_index (status)
	)`},
		{"analysis_history", `
	CREATE TABLE IF NOT EXISTS analysis_history(
		id INT NOT NULL AUTO_INCREMENT,
		image_id INT NOT NULL,
		area_id INT NOT NULL,
		object_key VARCHAR(512) NOT NULL,
		pollution_detected BOOL NOT NULL DEFAULT false,
		raw_result TEXT,
		job_id INT NOT NULL,
		analyzed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_image (image_id),
		INDEX area_id_index (area_id),
		INDEX job_id_index (job_id)
	)`},
		{"pollution_detections", `
	CREATE TABLE IF NOT EXISTS pollution_detections(
		id INT NOT NULL AUTO_INCREMENT,
		image_id INT NOT NULL,
		area_id INT NOT NULL,
		tile_x INT NOT NULL,
		tile_y INT NOT NULL,
		pollution_type ENUM('oil', 'plastic') NOT NULL,
		confidence FLOAT NOT NULL,
		severity ENUM('low', 'medium', 'high', 'critical') NOT NULL,
		estimated_area_km2 FLOAT NOT NULL DEFAULT 0,
		description TEXT,
		affected_regions JSON,
		lat_min DOUBLE NOT NULL,
		lon_min DOUBLE NOT NULL,
		lat_max DOUBLE NOT NULL,
		lon_max DOUBLE NOT NULL,
		detected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		verified BOOL NOT NULL DEFAULT false,
		PRIMARY KEY (id),
		INDEX area_id_index (area_id),
		INDEX detected_at_index (detected_at),
		INDEX severity_index (severity)
	)`},
		{"image_blobs", `
	CREATE TABLE IF NOT EXISTS image_blobs(
		object_key VARCHAR(512) NOT NULL,
		data LONGBLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (object_key)
	)`},
	}

	for _, table := range tables {
		if _, err := d.db.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
		log.Infof("%s table created/verified", table.name)
	}

	log.Info("Marine-scan database schema initialization completed")
	return nil
}
