package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"marine-scan-pipeline/analyzer"
	"marine-scan-pipeline/scanner"
)

type countingScan struct {
	calls atomic.Int32
}

func (c *countingScan) RunFullScan(ctx context.Context) (*scanner.Summary, error) {
	c.calls.Add(1)
	return &scanner.Summary{}, nil
}

type countingAnalysis struct {
	calls atomic.Int32
}

func (c *countingAnalysis) RunBatch(ctx context.Context, limit int) (*analyzer.Summary, error) {
	c.calls.Add(1)
	return &analyzer.Summary{}, nil
}

func TestSchedulerFiresImmediatelyAndOnTick(t *testing.T) {
	scan := &countingScan{}
	analysis := &countingAnalysis{}
	s := New(scan, analysis, 30*time.Millisecond, 30*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for scan.calls.Load() < 2 || analysis.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected startup fire plus at least one tick, got scan=%d analysis=%d",
				scan.calls.Load(), analysis.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSchedulerStopHaltsLoops(t *testing.T) {
	scan := &countingScan{}
	analysis := &countingAnalysis{}
	s := New(scan, analysis, 20*time.Millisecond, 20*time.Millisecond)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	settled := scan.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if scan.calls.Load() > settled+1 {
		t.Errorf("scan loop kept firing after Stop: %d -> %d", settled, scan.calls.Load())
	}
}

func TestSchedulerAlreadyRunningSkipIsNotFatal(t *testing.T) {
	scan := &countingScan{}
	analysis := &countingAnalysis{}
	s := New(scan, analysis, time.Hour, time.Hour)

	s.Start(context.Background())
	s.Start(context.Background()) // second Start must be a no-op
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if scan.calls.Load() != 1 {
		t.Errorf("expected exactly one startup scan, got %d", scan.calls.Load())
	}
}
