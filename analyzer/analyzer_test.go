package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"marine-scan-pipeline/models"
	"marine-scan-pipeline/parser"
)

type fakeRegistry struct {
	images   []*models.CapturedImage
	analyzed map[int64]bool

	jobsCreated    []int
	lastProgress   [2]int
	finishedStatus string
	finishedMsg    string
	history        []*models.AnalysisHistoryEntry
	detections     []*models.PollutionDetection
}

func newFakeRegistry(images ...*models.CapturedImage) *fakeRegistry {
	return &fakeRegistry{images: images, analyzed: map[int64]bool{}}
}

func (f *fakeRegistry) GetRecentImages(ctx context.Context, limit int) ([]*models.CapturedImage, error) {
	if limit < len(f.images) {
		return f.images[:limit], nil
	}
	return f.images, nil
}

func (f *fakeRegistry) GetAnalyzedImageIDs(ctx context.Context) (map[int64]bool, error) {
	return f.analyzed, nil
}

func (f *fakeRegistry) CreateJob(ctx context.Context, totalImages int) (int64, error) {
	f.jobsCreated = append(f.jobsCreated, totalImages)
	return int64(len(f.jobsCreated)), nil
}

func (f *fakeRegistry) UpdateJobProgress(ctx context.Context, jobID int64, analyzedImages, detectionsFound int) error {
	f.lastProgress = [2]int{analyzedImages, detectionsFound}
	return nil
}

func (f *fakeRegistry) FinishJob(ctx context.Context, jobID int64, status string, errorMessage string) error {
	f.finishedStatus = status
	f.finishedMsg = errorMessage
	return nil
}

func (f *fakeRegistry) InsertHistoryEntry(ctx context.Context, entry *models.AnalysisHistoryEntry) error {
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeRegistry) InsertDetection(ctx context.Context, det *models.PollutionDetection) error {
	f.detections = append(f.detections, det)
	return nil
}

type fakeStore struct {
	missing map[string]bool
}

func (s *fakeStore) Upload(ctx context.Context, key string, data []byte) error {
	return nil
}

func (s *fakeStore) Download(ctx context.Context, key string) ([]byte, error) {
	if s.missing[key] {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return []byte(key), nil
}

// fakeVision detects pollution for image keys listed in detectKeys and
// errors for keys listed in failKeys.
type fakeVision struct {
	detectKeys map[string]bool
	failKeys   map[string]bool
	calls      int
}

func (v *fakeVision) SourceName() string { return "fake" }

func (v *fakeVision) Analyze(ctx context.Context, imageData []byte, target models.PollutionTarget, bbox models.BBox) (*parser.AnalysisResult, error) {
	v.calls++
	key := string(imageData)
	if v.failKeys[key] {
		return nil, errors.New("vision service unavailable")
	}
	if v.detectKeys[key] {
		return &parser.AnalysisResult{
			PollutionDetected: true,
			PollutionType:     string(target),
			ConfidenceScore:   0.8,
			SeverityLevel:     models.SeverityHigh,
			EstimatedAreaKm2:  30,
			Description:       "slick visible",
		}, nil
	}
	return &parser.AnalysisResult{
		PollutionDetected: false,
		PollutionType:     "none",
		ConfidenceScore:   0.9,
	}, nil
}

type recordingPublisher struct {
	events []interface{}
}

func (p *recordingPublisher) Publish(message interface{}) error {
	p.events = append(p.events, message)
	return nil
}

func testImage(id int64) *models.CapturedImage {
	return &models.CapturedImage{
		ID:         id,
		AreaID:     1,
		SessionID:  1,
		TileX:      int(id),
		TileY:      0,
		Target:     models.TargetOil,
		ObjectKey:  fmt.Sprintf("oil/1/2026-09-01/tile_%d_0.png", id),
		CapturedAt: time.Now(),
	}
}

func newTestRunner(reg *fakeRegistry, v *fakeVision, pub Publisher) *Runner {
	return New(reg, &fakeStore{}, v, pub, Options{
		DefaultBatch:    10,
		ImagePacing:     0,
		ExternalTimeout: time.Second,
	})
}

func TestDedupExcludesAnalyzedImages(t *testing.T) {
	reg := newFakeRegistry(testImage(1), testImage(2), testImage(3))
	reg.analyzed[2] = true
	v := &fakeVision{}

	summary, err := newTestRunner(reg, v, nil).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if summary.Candidates != 2 {
		t.Errorf("candidates = %d, want 2 (already-analyzed image excluded)", summary.Candidates)
	}
	if v.calls != 2 {
		t.Errorf("vision calls = %d, want 2", v.calls)
	}
	for _, entry := range reg.history {
		if entry.ImageID == 2 {
			t.Error("image 2 must not be re-analyzed")
		}
	}
}

func TestCandidateCapAfterOverfetch(t *testing.T) {
	images := make([]*models.CapturedImage, 0, 8)
	for i := int64(1); i <= 8; i++ {
		images = append(images, testImage(i))
	}
	reg := newFakeRegistry(images...)
	v := &fakeVision{}

	summary, err := newTestRunner(reg, v, nil).RunBatch(context.Background(), 3)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if summary.Candidates != 3 {
		t.Errorf("candidates = %d, want cap of 3", summary.Candidates)
	}
	if reg.jobsCreated[0] != 3 {
		t.Errorf("job total = %d, want 3", reg.jobsCreated[0])
	}
}

func TestDetectionMatchesHistoryLedger(t *testing.T) {
	reg := newFakeRegistry(testImage(1), testImage(2))
	v := &fakeVision{detectKeys: map[string]bool{testImage(1).ObjectKey: true}}
	pub := &recordingPublisher{}

	summary, err := newTestRunner(reg, v, pub).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if summary.DetectionsFound != 1 {
		t.Errorf("detections = %d, want 1", summary.DetectionsFound)
	}
	if len(reg.history) != 2 {
		t.Fatalf("history entries = %d, want one per analyzed image", len(reg.history))
	}

	// Every detection must have a history entry with pollution_detected
	// set; negatives get a ledger entry and no detection.
	detected := map[int64]bool{}
	for _, det := range reg.detections {
		detected[det.ImageID] = true
	}
	for _, entry := range reg.history {
		if entry.PollutionDetected != detected[entry.ImageID] {
			t.Errorf("image %d: history detected=%v but detection row present=%v",
				entry.ImageID, entry.PollutionDetected, detected[entry.ImageID])
		}
		if entry.RawResult == "" {
			t.Errorf("image %d: history entry missing raw result", entry.ImageID)
		}
	}

	if len(pub.events) != 1 {
		t.Errorf("published events = %d, want 1", len(pub.events))
	}

	det := reg.detections[0]
	if det.Severity != models.SeverityHigh || det.EstimatedAreaKm2 != 30 {
		t.Errorf("detection fields not copied from analysis result: %+v", det)
	}
	if reg.finishedStatus != models.StatusCompleted {
		t.Errorf("job status = %q, want completed", reg.finishedStatus)
	}
}

func TestFailedImageLeavesNoHistory(t *testing.T) {
	reg := newFakeRegistry(testImage(1), testImage(2), testImage(3))
	v := &fakeVision{failKeys: map[string]bool{testImage(2).ObjectKey: true}}

	summary, err := newTestRunner(reg, v, nil).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if summary.FailedImages != 1 || summary.AnalyzedImages != 2 {
		t.Errorf("summary = %+v, want 2 analyzed and 1 failed", summary)
	}
	// The failed image stays out of the ledger so the next batch
	// naturally retries it.
	for _, entry := range reg.history {
		if entry.ImageID == 2 {
			t.Error("failed image must not get a history entry")
		}
	}
	if reg.finishedStatus != models.StatusCompleted {
		t.Errorf("job status = %q, want completed", reg.finishedStatus)
	}
}

func TestFailureThresholdFailsJob(t *testing.T) {
	reg := newFakeRegistry(testImage(1), testImage(2), testImage(3), testImage(4))
	v := &fakeVision{failKeys: map[string]bool{
		testImage(1).ObjectKey: true,
		testImage(2).ObjectKey: true,
		testImage(3).ObjectKey: true,
	}}

	summary, err := newTestRunner(reg, v, nil).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if reg.finishedStatus != models.StatusFailed {
		t.Errorf("job status = %q, want failed", reg.finishedStatus)
	}
	if reg.finishedMsg == "" {
		t.Error("failed job should carry an explanatory message")
	}
	if summary.FailedImages != 3 {
		t.Errorf("failed images = %d, want 3", summary.FailedImages)
	}
}

// cancelAfterVision answers the first image normally, then cancels the
// batch context shortly after, while the runner sits in its inter-image
// pacing wait.
type cancelAfterVision struct {
	calls  int
	cancel context.CancelFunc
}

func (v *cancelAfterVision) SourceName() string { return "fake" }

func (v *cancelAfterVision) Analyze(ctx context.Context, imageData []byte, target models.PollutionTarget, bbox models.BBox) (*parser.AnalysisResult, error) {
	v.calls++
	if v.calls == 1 {
		go func() {
			time.Sleep(20 * time.Millisecond)
			v.cancel()
		}()
	}
	return &parser.AnalysisResult{
		PollutionDetected: false,
		PollutionType:     "none",
		ConfidenceScore:   0.9,
	}, nil
}

func TestCancellationDuringPacingStopsBatch(t *testing.T) {
	reg := newFakeRegistry(testImage(1), testImage(2), testImage(3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v := &cancelAfterVision{cancel: cancel}

	runner := New(reg, &fakeStore{}, v, nil, Options{
		DefaultBatch:    10,
		ImagePacing:     300 * time.Millisecond,
		ExternalTimeout: time.Second,
	})
	summary, err := runner.RunBatch(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBatch error = %v, want context.Canceled", err)
	}
	// The second image must never be submitted with a dead context.
	if v.calls != 1 {
		t.Errorf("vision calls = %d, want 1", v.calls)
	}
	if summary.FailedImages != 0 {
		t.Errorf("failed images = %d, want 0 (cancellation is not an image failure)", summary.FailedImages)
	}
	if reg.finishedStatus != models.StatusFailed {
		t.Errorf("job status = %q, want failed", reg.finishedStatus)
	}
}

func TestEmptyCandidateSetCreatesNoJob(t *testing.T) {
	reg := newFakeRegistry(testImage(1))
	reg.analyzed[1] = true

	summary, err := newTestRunner(reg, &fakeVision{}, nil).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: unexpected error: %v", err)
	}
	if summary.Candidates != 0 {
		t.Errorf("candidates = %d, want 0", summary.Candidates)
	}
	if len(reg.jobsCreated) != 0 {
		t.Error("no job may be created for an empty candidate set")
	}
}
