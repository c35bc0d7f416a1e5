// Package scanner drives scan sessions: for each eligible area it walks
// the tile grid, captures imagery and persists tile pointers. Tiles are
// processed strictly sequentially to respect shared provider quotas.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"marine-scan-pipeline/metrics"
	"marine-scan-pipeline/models"
	"marine-scan-pipeline/storage"
	"marine-scan-pipeline/tiles"
)

// checkpointInterval is how many tiles are processed between progress
// writes. Writing every tile would double the write load for no gain.
const checkpointInterval = 10

// ErrAlreadyRunning is returned when a scan run is triggered while a
// previous run is still in flight.
var ErrAlreadyRunning = errors.New("scan run already in progress")

// Registry is the persistence surface the orchestrator needs.
type Registry interface {
	GetActiveAreas(ctx context.Context) ([]*models.ScanArea, error)
	HasRecentCompletedSession(ctx context.Context, areaID int64, window time.Duration) (bool, error)
	AcquireScanLock(ctx context.Context, areaID int64, scanDate string) (bool, error)
	ReleaseScanLock(ctx context.Context, areaID int64, scanDate string) error
	CreateSession(ctx context.Context, areaID int64, totalTiles int) (int64, error)
	UpdateSessionProgress(ctx context.Context, sessionID int64, processedTiles int) error
	FinishSession(ctx context.Context, sessionID int64, status string, processedTiles int, errorMessage string) error
	InsertCapturedImage(ctx context.Context, img *models.CapturedImage) (bool, error)
}

// ImageryProvider matches imagery.Provider; declared here so the
// orchestrator depends only on what it uses.
type ImageryProvider interface {
	Authenticate(ctx context.Context) (string, error)
	Capture(ctx context.Context, token string, bbox models.BBox, target models.PollutionTarget) ([]byte, error)
}

// Orchestrator runs full scans over all active areas.
type Orchestrator struct {
	registry Registry
	provider ImageryProvider
	store    storage.Store

	recencyWindow   time.Duration
	areaPacing      time.Duration
	externalTimeout time.Duration

	mu sync.Mutex
}

// Options tune orchestrator pacing and timeouts.
type Options struct {
	RecencyWindow   time.Duration
	AreaPacing      time.Duration
	ExternalTimeout time.Duration
}

// New creates a scan orchestrator.
func New(registry Registry, provider ImageryProvider, store storage.Store, opts Options) *Orchestrator {
	if opts.RecencyWindow <= 0 {
		opts.RecencyWindow = 24 * time.Hour
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 60 * time.Second
	}
	return &Orchestrator{
		registry:        registry,
		provider:        provider,
		store:           store,
		recencyWindow:   opts.RecencyWindow,
		areaPacing:      opts.AreaPacing,
		externalTimeout: opts.ExternalTimeout,
	}
}

// Summary describes one orchestrator invocation.
type Summary struct {
	AreasScanned   int `json:"areas_scanned"`
	AreasSkipped   int `json:"areas_skipped"`
	AreasFailed    int `json:"areas_failed"`
	TilesProcessed int `json:"tiles_processed"`
	TilesFailed    int `json:"tiles_failed"`
}

// RunFullScan scans every eligible active area once. A failed session
// for one area never blocks the remaining areas; the invocation itself
// errors only when a systemic failure happens before any area is
// processed (provider authentication, area listing).
func (o *Orchestrator) RunFullScan(ctx context.Context) (*Summary, error) {
	if !o.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer o.mu.Unlock()

	token, err := o.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("imagery provider authentication failed: %w", err)
	}

	areas, err := o.registry.GetActiveAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active areas: %w", err)
	}
	log.Infof("Starting full scan over %d active areas", len(areas))

	summary := &Summary{}
	for i, area := range areas {
		if i > 0 && o.areaPacing > 0 {
			select {
			case <-time.After(o.areaPacing):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}

		outcome, err := o.scanArea(ctx, token, area)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			log.Errorf("Scan of area %d (%s) failed: %v", area.ID, area.Name, err)
		}
		summary.AreasScanned += outcome.scanned
		summary.AreasSkipped += outcome.skipped
		summary.AreasFailed += outcome.failed
		summary.TilesProcessed += outcome.tilesProcessed
		summary.TilesFailed += outcome.tilesFailed
	}

	log.Infof("Full scan finished: %d scanned, %d skipped, %d failed",
		summary.AreasScanned, summary.AreasSkipped, summary.AreasFailed)
	return summary, nil
}

type areaOutcome struct {
	scanned, skipped, failed    int
	tilesProcessed, tilesFailed int
}

// scanArea runs one scan session for one area.
func (o *Orchestrator) scanArea(ctx context.Context, token string, area *models.ScanArea) (areaOutcome, error) {
	scanDate := time.Now().UTC().Format("2006-01-02")

	locked, err := o.registry.AcquireScanLock(ctx, area.ID, scanDate)
	if err != nil {
		return areaOutcome{failed: 1}, err
	}
	if !locked {
		log.Infof("Area %d is being scanned by another run, skipping", area.ID)
		return areaOutcome{skipped: 1}, nil
	}
	defer func() {
		if err := o.registry.ReleaseScanLock(context.WithoutCancel(ctx), area.ID, scanDate); err != nil {
			log.Warnf("Failed to release scan lock for area %d: %v", area.ID, err)
		}
	}()

	recent, err := o.registry.HasRecentCompletedSession(ctx, area.ID, o.recencyWindow)
	if err != nil {
		return areaOutcome{failed: 1}, err
	}
	if recent {
		log.Infof("Area %d (%s) scanned within the last %v, skipping", area.ID, area.Name, o.recencyWindow)
		return areaOutcome{skipped: 1}, nil
	}

	grid := tiles.Generate(area.BBox)
	if len(grid) == 0 {
		log.Warnf("Area %d (%s) produces an empty tile grid, skipping", area.ID, area.Name)
		return areaOutcome{skipped: 1}, nil
	}

	sessionID, err := o.registry.CreateSession(ctx, area.ID, len(grid))
	if err != nil {
		return areaOutcome{failed: 1}, err
	}
	log.Infof("Started session %d for area %d (%s): %d tiles", sessionID, area.ID, area.Name, len(grid))

	started := time.Now()
	processed := 0
	failed := 0
	for _, tile := range grid {
		if ctx.Err() != nil {
			o.finishSession(ctx, sessionID, models.StatusFailed, processed,
				fmt.Sprintf("scan aborted: %v", ctx.Err()))
			metrics.ScanSessionsTotal.WithLabelValues("failed").Inc()
			return areaOutcome{failed: 1, tilesProcessed: processed, tilesFailed: failed}, ctx.Err()
		}

		if err := o.processTile(ctx, token, area, sessionID, tile); err != nil {
			failed++
			metrics.TilesProcessedTotal.WithLabelValues("failed").Inc()
			log.Warnf("Tile (%d,%d) of area %d failed: %v", tile.X, tile.Y, area.ID, err)
		} else {
			metrics.TilesProcessedTotal.WithLabelValues("ok").Inc()
		}
		processed++

		if processed%checkpointInterval == 0 {
			if err := o.registry.UpdateSessionProgress(ctx, sessionID, processed); err != nil {
				log.Warnf("Failed to checkpoint session %d: %v", sessionID, err)
			}
		}

		// Circuit breaker: once more than half the grid failed there is
		// no point burning provider quota on the rest.
		if failed*2 > len(grid) {
			message := fmt.Sprintf("aborted after %d/%d tile failures", failed, len(grid))
			o.finishSession(ctx, sessionID, models.StatusFailed, processed, message)
			metrics.ScanSessionsTotal.WithLabelValues("failed").Inc()
			metrics.ScanDurationSeconds.Observe(time.Since(started).Seconds())
			log.Errorf("Session %d for area %d failed: %s", sessionID, area.ID, message)
			return areaOutcome{failed: 1, tilesProcessed: processed, tilesFailed: failed}, nil
		}
	}

	o.finishSession(ctx, sessionID, models.StatusCompleted, processed, "")
	metrics.ScanSessionsTotal.WithLabelValues("completed").Inc()
	metrics.ScanDurationSeconds.Observe(time.Since(started).Seconds())
	log.Infof("Session %d for area %d completed: %d tiles, %d failures", sessionID, area.ID, processed, failed)
	return areaOutcome{scanned: 1, tilesProcessed: processed, tilesFailed: failed}, nil
}

// processTile captures, uploads and records one tile. Each external call
// gets its own timeout so a stalled provider cannot wedge the run.
func (o *Orchestrator) processTile(ctx context.Context, token string, area *models.ScanArea, sessionID int64, tile models.Tile) error {
	captureCtx, cancel := context.WithTimeout(ctx, o.externalTimeout)
	imageData, err := o.provider.Capture(captureCtx, token, tile.BBox, area.Target)
	cancel()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	capturedAt := time.Now().UTC().Truncate(time.Second)
	key := storage.ObjectKey(area.Target, area.ID, capturedAt, tile.X, tile.Y)

	uploadCtx, cancel := context.WithTimeout(ctx, o.externalTimeout)
	err = o.store.Upload(uploadCtx, key, imageData)
	cancel()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	inserted, err := o.registry.InsertCapturedImage(ctx, &models.CapturedImage{
		AreaID:     area.ID,
		SessionID:  sessionID,
		TileX:      tile.X,
		TileY:      tile.Y,
		BBox:       tile.BBox,
		Target:     area.Target,
		ObjectKey:  key,
		CapturedAt: capturedAt,
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if !inserted {
		log.Debugf("Tile (%d,%d) of area %d already captured at %v", tile.X, tile.Y, area.ID, capturedAt)
	}
	return nil
}

func (o *Orchestrator) authenticate(ctx context.Context) (string, error) {
	authCtx, cancel := context.WithTimeout(ctx, o.externalTimeout)
	defer cancel()
	return o.provider.Authenticate(authCtx)
}

func (o *Orchestrator) finishSession(ctx context.Context, sessionID int64, status string, processed int, message string) {
	if err := o.registry.FinishSession(context.WithoutCancel(ctx), sessionID, status, processed, message); err != nil {
		log.Errorf("Failed to mark session %d %s: %v", sessionID, status, err)
	}
}
