// Package analyzer runs batch vision analysis over captured images that
// have no analysis history yet. Images are processed one at a time with
// an inter-call delay to respect the shared analyzer quota.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"marine-scan-pipeline/metrics"
	"marine-scan-pipeline/models"
	"marine-scan-pipeline/storage"
	"marine-scan-pipeline/vision"
)

// ErrAlreadyRunning is returned when a batch is triggered while a
// previous batch is still in flight.
var ErrAlreadyRunning = errors.New("analysis batch already in progress")

// Registry is the persistence surface the job runner needs.
type Registry interface {
	GetRecentImages(ctx context.Context, limit int) ([]*models.CapturedImage, error)
	GetAnalyzedImageIDs(ctx context.Context) (map[int64]bool, error)
	CreateJob(ctx context.Context, totalImages int) (int64, error)
	UpdateJobProgress(ctx context.Context, jobID int64, analyzedImages, detectionsFound int) error
	FinishJob(ctx context.Context, jobID int64, status string, errorMessage string) error
	InsertHistoryEntry(ctx context.Context, entry *models.AnalysisHistoryEntry) error
	InsertDetection(ctx context.Context, det *models.PollutionDetection) error
}

// Publisher pushes detection events to downstream consumers.
type Publisher interface {
	Publish(message interface{}) error
}

// Runner executes analysis jobs.
type Runner struct {
	registry Registry
	store    storage.Store
	vision   vision.Analyzer
	// publisher may be nil; detection events are best effort.
	publisher Publisher

	defaultBatch    int
	imagePacing     time.Duration
	externalTimeout time.Duration

	mu sync.Mutex
}

// Options tune runner batching and pacing.
type Options struct {
	DefaultBatch    int
	ImagePacing     time.Duration
	ExternalTimeout time.Duration
}

// New creates an analysis job runner.
func New(registry Registry, store storage.Store, analyzer vision.Analyzer, publisher Publisher, opts Options) *Runner {
	if opts.DefaultBatch <= 0 {
		opts.DefaultBatch = 20
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 60 * time.Second
	}
	return &Runner{
		registry:        registry,
		store:           store,
		vision:          analyzer,
		publisher:       publisher,
		defaultBatch:    opts.DefaultBatch,
		imagePacing:     opts.ImagePacing,
		externalTimeout: opts.ExternalTimeout,
	}
}

// Summary describes one batch invocation.
type Summary struct {
	JobID           int64 `json:"job_id,omitempty"`
	Candidates      int   `json:"candidates"`
	AnalyzedImages  int   `json:"analyzed_images"`
	FailedImages    int   `json:"failed_images"`
	DetectionsFound int   `json:"detections_found"`
}

// DetectionEvent is the message published for every persisted detection.
type DetectionEvent struct {
	Detection *models.PollutionDetection `json:"detection"`
	JobID     int64                      `json:"job_id"`
}

// RunBatch analyzes up to limit not-yet-analyzed images. A limit of zero
// uses the configured default. Images that fail stay unanalyzed and are
// naturally retried by the next scheduled batch, since only successful
// analyses get a history entry.
func (r *Runner) RunBatch(ctx context.Context, limit int) (*Summary, error) {
	if !r.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = r.defaultBatch
	}

	candidates, err := r.selectCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		log.Info("No unanalyzed images, skipping analysis batch")
		return &Summary{}, nil
	}

	jobID, err := r.registry.CreateJob(ctx, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis job: %w", err)
	}
	log.Infof("Started analysis job %d over %d images", jobID, len(candidates))

	summary := &Summary{JobID: jobID, Candidates: len(candidates)}
	for i, img := range candidates {
		if ctx.Err() != nil {
			r.finishJob(ctx, jobID, models.StatusFailed, fmt.Sprintf("batch aborted: %v", ctx.Err()))
			metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
			return summary, ctx.Err()
		}
		if i > 0 && r.imagePacing > 0 {
			select {
			case <-time.After(r.imagePacing):
			case <-ctx.Done():
				r.finishJob(ctx, jobID, models.StatusFailed, fmt.Sprintf("batch aborted: %v", ctx.Err()))
				metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
				return summary, ctx.Err()
			}
		}

		detected, err := r.analyzeImage(ctx, jobID, img)
		if err != nil {
			summary.FailedImages++
			metrics.ImagesAnalyzedTotal.WithLabelValues("failed").Inc()
			log.Warnf("Analysis of image %d (%s) failed: %v", img.ID, img.ObjectKey, err)
		} else {
			summary.AnalyzedImages++
			metrics.ImagesAnalyzedTotal.WithLabelValues("ok").Inc()
			if detected {
				summary.DetectionsFound++
				metrics.DetectionsFoundTotal.Inc()
			}
		}

		if err := r.registry.UpdateJobProgress(ctx, jobID, summary.AnalyzedImages, summary.DetectionsFound); err != nil {
			log.Warnf("Failed to update job %d progress: %v", jobID, err)
		}

		if summary.FailedImages*2 > len(candidates) {
			message := fmt.Sprintf("aborted after %d/%d image failures", summary.FailedImages, len(candidates))
			r.finishJob(ctx, jobID, models.StatusFailed, message)
			metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
			log.Errorf("Analysis job %d failed: %s", jobID, message)
			return summary, nil
		}
	}

	r.finishJob(ctx, jobID, models.StatusCompleted, "")
	metrics.AnalysisJobsTotal.WithLabelValues("completed").Inc()
	log.Infof("Analysis job %d completed: %d analyzed, %d detections, %d failures",
		jobID, summary.AnalyzedImages, summary.DetectionsFound, summary.FailedImages)
	return summary, nil
}

// selectCandidates over-fetches recent images, drops everything already
// in the analysis history and caps the remainder to the limit. The
// history filter is the dedup guarantee: an image is never analyzed
// twice.
func (r *Runner) selectCandidates(ctx context.Context, limit int) ([]*models.CapturedImage, error) {
	recent, err := r.registry.GetRecentImages(ctx, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent images: %w", err)
	}

	analyzed, err := r.registry.GetAnalyzedImageIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analysis history: %w", err)
	}

	candidates := make([]*models.CapturedImage, 0, limit)
	for _, img := range recent {
		if analyzed[img.ID] {
			continue
		}
		candidates = append(candidates, img)
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// analyzeImage runs one image through download, analysis, and
// persistence. The history entry is written for every successful
// analysis regardless of the verdict; the detection row only for a
// positive one.
func (r *Runner) analyzeImage(ctx context.Context, jobID int64, img *models.CapturedImage) (bool, error) {
	started := time.Now()
	defer func() {
		metrics.AnalysisDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	downloadCtx, cancel := context.WithTimeout(ctx, r.externalTimeout)
	imageData, err := r.store.Download(downloadCtx, img.ObjectKey)
	cancel()
	if err != nil {
		return false, fmt.Errorf("download: %w", err)
	}

	analyzeCtx, cancel := context.WithTimeout(ctx, r.externalTimeout)
	result, err := r.vision.Analyze(analyzeCtx, imageData, img.Target, img.BBox)
	cancel()
	if err != nil {
		return false, fmt.Errorf("analyze: %w", err)
	}

	rawResult, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	entry := &models.AnalysisHistoryEntry{
		ImageID:           img.ID,
		AreaID:            img.AreaID,
		ObjectKey:         img.ObjectKey,
		PollutionDetected: result.PollutionDetected,
		RawResult:         string(rawResult),
		JobID:             jobID,
	}
	if err := r.registry.InsertHistoryEntry(ctx, entry); err != nil {
		return false, fmt.Errorf("persist history: %w", err)
	}

	if !result.PollutionDetected {
		return false, nil
	}

	detection := &models.PollutionDetection{
		ImageID:          img.ID,
		AreaID:           img.AreaID,
		TileX:            img.TileX,
		TileY:            img.TileY,
		PollutionType:    models.PollutionTarget(result.PollutionType),
		Confidence:       result.ConfidenceScore,
		Severity:         result.SeverityLevel,
		EstimatedAreaKm2: result.EstimatedAreaKm2,
		Description:      result.Description,
		AffectedRegions:  result.AffectedRegions,
		BBox:             img.BBox,
		DetectedAt:       time.Now().UTC(),
	}
	if err := r.registry.InsertDetection(ctx, detection); err != nil {
		return false, fmt.Errorf("persist detection: %w", err)
	}
	log.Infof("Detected %s pollution in image %d: severity %s, %.1f km2",
		detection.PollutionType, img.ID, detection.Severity, detection.EstimatedAreaKm2)

	if r.publisher != nil {
		if err := r.publisher.Publish(DetectionEvent{Detection: detection, JobID: jobID}); err != nil {
			log.Warnf("Failed to publish detection %d: %v", detection.ID, err)
		}
	}
	return true, nil
}

func (r *Runner) finishJob(ctx context.Context, jobID int64, status string, message string) {
	if err := r.registry.FinishJob(context.WithoutCancel(ctx), jobID, status, message); err != nil {
		log.Errorf("Failed to mark job %d %s: %v", jobID, status, err)
	}
}
