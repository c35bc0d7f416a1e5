// Package scheduler drives the periodic pipeline: a daily capture sweep
// and an hourly analysis batch. Each trigger runs on its own ticker and
// both fire once immediately at startup so a fresh deployment does not
// sit idle until the first interval elapses.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"

	"marine-scan-pipeline/analyzer"
	"marine-scan-pipeline/scanner"
)

// ScanTrigger starts a full capture sweep across all active areas.
type ScanTrigger interface {
	RunFullScan(ctx context.Context) (*scanner.Summary, error)
}

// AnalysisTrigger starts one analysis batch.
type AnalysisTrigger interface {
	RunBatch(ctx context.Context, limit int) (*analyzer.Summary, error)
}

// Scheduler owns the scan and analysis tickers.
type Scheduler struct {
	orchestrator ScanTrigger
	runner       AnalysisTrigger

	scanInterval     time.Duration
	analysisInterval time.Duration

	running  bool
	stopChan chan struct{}
}

// New creates a scheduler over the scan orchestrator and analysis runner.
func New(orchestrator ScanTrigger, runner AnalysisTrigger, scanInterval, analysisInterval time.Duration) *Scheduler {
	return &Scheduler{
		orchestrator:     orchestrator,
		runner:           runner,
		scanInterval:     scanInterval,
		analysisInterval: analysisInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start launches both loops. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.running {
		log.Warn("Scheduler is already running")
		return
	}
	s.running = true
	log.WithField("scan_interval", s.scanInterval.String()).
		WithField("analysis_interval", s.analysisInterval.String()).
		Info("Starting scheduler")

	go s.runLoop(ctx, "scan", s.scanInterval, s.triggerScan)
	go s.runLoop(ctx, "analysis", s.analysisInterval, s.triggerAnalysis)
}

// Stop halts both loops.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	log.Info("Stopping scheduler")
	s.running = false
	close(s.stopChan)
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, trigger func(ctx context.Context)) {
	trigger(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			log.Infof("Scheduler %s loop stopped", name)
			return
		case <-ctx.Done():
			log.Infof("Scheduler %s loop stopped: %v", name, ctx.Err())
			return
		case <-ticker.C:
			trigger(ctx)
		}
	}
}

func (s *Scheduler) triggerScan(ctx context.Context) {
	summary, err := s.orchestrator.RunFullScan(ctx)
	if err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			log.Warn("Skipping scheduled scan, previous run still in progress")
			return
		}
		log.Errorf("Scheduled scan failed: %v", err)
		return
	}
	log.WithField("areas_scanned", summary.AreasScanned).
		WithField("areas_skipped", summary.AreasSkipped).
		WithField("areas_failed", summary.AreasFailed).
		WithField("tiles_processed", summary.TilesProcessed).
		Info("Scheduled scan finished")
}

func (s *Scheduler) triggerAnalysis(ctx context.Context) {
	summary, err := s.runner.RunBatch(ctx, 0)
	if err != nil {
		if errors.Is(err, analyzer.ErrAlreadyRunning) {
			log.Warn("Skipping scheduled analysis, previous batch still in progress")
			return
		}
		log.Errorf("Scheduled analysis failed: %v", err)
		return
	}
	log.WithField("images_analyzed", summary.AnalyzedImages).
		WithField("detections", summary.DetectionsFound).
		Info("Scheduled analysis finished")
}
