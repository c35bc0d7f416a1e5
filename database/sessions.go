package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marine-scan-pipeline/models"
)

// CreateSession inserts a running scan session and returns its id.
func (d *Database) CreateSession(ctx context.Context, areaID int64, totalTiles int) (int64, error) {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO scan_sessions (area_id, total_tiles, processed_tiles, status)
		VALUES (?, ?, 0, 'running')`, areaID, totalTiles)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan session: %w", err)
	}
	return result.LastInsertId()
}

// UpdateSessionProgress checkpoints the processed tile counter.
func (d *Database) UpdateSessionProgress(ctx context.Context, sessionID int64, processedTiles int) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE scan_sessions SET processed_tiles = ? WHERE id = ?`,
		processedTiles, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session %d progress: %w", sessionID, err)
	}
	return nil
}

// FinishSession moves a session to its terminal status.
func (d *Database) FinishSession(ctx context.Context, sessionID int64, status string, processedTiles int, errorMessage string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE scan_sessions
		SET status = ?, processed_tiles = ?, error_message = ?, completed_at = NOW()
		WHERE id = ?`,
		status, processedTiles, errorMessage, sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session %d: %w", sessionID, err)
	}
	return nil
}

// HasRecentCompletedSession reports whether a session for the area
// completed within the given window. The orchestrator uses this for its
// soft at-most-once-per-day guarantee.
func (d *Database) HasRecentCompletedSession(ctx context.Context, areaID int64, window time.Duration) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_sessions
		WHERE area_id = ? AND status = 'completed' AND completed_at > ?`,
		areaID, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent sessions for area %d: %w", areaID, err)
	}
	return count > 0, nil
}

// GetLatestSession returns the most recent session for an area, or nil
// if the area was never scanned.
func (d *Database) GetLatestSession(ctx context.Context, areaID int64) (*models.ScanSession, error) {
	var session models.ScanSession
	var errorMessage sql.NullString
	var completedAt sql.NullTime
	err := d.db.QueryRowContext(ctx, `SELECT id, area_id, total_tiles, processed_tiles,
			status, error_message, started_at, completed_at
		FROM scan_sessions WHERE area_id = ?
		ORDER BY started_at DESC LIMIT 1`, areaID).
		Scan(&session.ID, &session.AreaID, &session.TotalTiles, &session.ProcessedTiles,
			&session.Status, &errorMessage, &session.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session for area %d: %w", areaID, err)
	}
	session.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return &session, nil
}

// AcquireScanLock takes a MySQL advisory lock keyed on (area, scan-date)
// so two concurrent orchestrator runs cannot both pass the recency check
// for the same area. Returns false without error when the lock is held
// elsewhere.
func (d *Database) AcquireScanLock(ctx context.Context, areaID int64, scanDate string) (bool, error) {
	var got sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT GET_LOCK(?, 0)`, scanLockName(areaID, scanDate)).Scan(&got)
	if err != nil {
		return false, fmt.Errorf("failed to acquire scan lock for area %d: %w", areaID, err)
	}
	return got.Valid && got.Int64 == 1, nil
}

// ReleaseScanLock releases the advisory lock taken by AcquireScanLock.
func (d *Database) ReleaseScanLock(ctx context.Context, areaID int64, scanDate string) error {
	var released sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT RELEASE_LOCK(?)`, scanLockName(areaID, scanDate)).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release scan lock for area %d: %w", areaID, err)
	}
	return nil
}

func scanLockName(areaID int64, scanDate string) string {
	return fmt.Sprintf("marinescan:scan:%d:%s", areaID, scanDate)
}
