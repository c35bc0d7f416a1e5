package database

import (
	"context"
	"fmt"

	"marine-scan-pipeline/models"
)

// CreateJob inserts a running analysis job and returns its id.
func (d *Database) CreateJob(ctx context.Context, totalImages int) (int64, error) {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO analysis_jobs (total_images, analyzed_images, detections_found, status)
		VALUES (?, 0, 0, 'running')`, totalImages)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis job: %w", err)
	}
	return result.LastInsertId()
}

// UpdateJobProgress writes the monotonically increasing job counters.
func (d *Database) UpdateJobProgress(ctx context.Context, jobID int64, analyzedImages, detectionsFound int) error {
	_, err := d.db.ExecContext(ctx, `UPDATE analysis_jobs
		SET analyzed_images = ?, detections_found = ? WHERE id = ?`,
		analyzedImages, detectionsFound, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job %d progress: %w", jobID, err)
	}
	return nil
}

// FinishJob moves a job to its terminal status.
func (d *Database) FinishJob(ctx context.Context, jobID int64, status string, errorMessage string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE analysis_jobs
		SET status = ?, error_message = ?, completed_at = NOW() WHERE id = ?`,
		status, errorMessage, jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job %d: %w", jobID, err)
	}
	return nil
}

// InsertHistoryEntry writes the dedup ledger row for an analyzed image.
func (d *Database) InsertHistoryEntry(ctx context.Context, entry *models.AnalysisHistoryEntry) error {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO analysis_history (image_id, area_id, object_key, pollution_detected, raw_result, job_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ImageID, entry.AreaID, entry.ObjectKey,
		entry.PollutionDetected, entry.RawResult, entry.JobID)
	if err != nil {
		return fmt.Errorf("failed to insert history entry for image %d: %w", entry.ImageID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}
