package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ScanSessionsTotal counts finished scan sessions by outcome.
	ScanSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marinescan",
		Subsystem: "scanner",
		Name:      "sessions_total",
		Help:      "Total number of scan sessions finished, labeled by result.",
	}, []string{"result"})

	// TilesProcessedTotal counts tile captures by outcome.
	TilesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marinescan",
		Subsystem: "scanner",
		Name:      "tiles_processed_total",
		Help:      "Total number of tile captures attempted, labeled by result.",
	}, []string{"result"})

	// ScanDurationSeconds is wall time per area scan session.
	ScanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marinescan",
		Subsystem: "scanner",
		Name:      "session_duration_seconds",
		Help:      "Wall time of one area scan session.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// AnalysisJobsTotal counts finished analysis jobs by outcome.
	AnalysisJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marinescan",
		Subsystem: "analyzer",
		Name:      "jobs_total",
		Help:      "Total number of analysis jobs finished, labeled by result.",
	}, []string{"result"})

	// ImagesAnalyzedTotal counts analyzed images by outcome.
	ImagesAnalyzedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marinescan",
		Subsystem: "analyzer",
		Name:      "images_analyzed_total",
		Help:      "Total number of images submitted to the vision analyzer, labeled by result.",
	}, []string{"result"})

	// DetectionsFoundTotal counts persisted pollution detections.
	DetectionsFoundTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marinescan",
		Subsystem: "analyzer",
		Name:      "detections_found_total",
		Help:      "Total number of pollution detections persisted.",
	})

	// AnalysisDurationSeconds is end-to-end time per analyzed image.
	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marinescan",
		Subsystem: "analyzer",
		Name:      "image_duration_seconds",
		Help:      "End-to-end time to download and analyze one image.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// Register registers all pipeline collectors with the default registry.
// Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ScanSessionsTotal,
			TilesProcessedTotal,
			ScanDurationSeconds,
			AnalysisJobsTotal,
			ImagesAnalyzedTotal,
			DetectionsFoundTotal,
			AnalysisDurationSeconds,
		)
	})
}
