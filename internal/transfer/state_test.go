package transfer

import (
	"testing"
	"time"

	"github.com/portico-labs/portico/internal/events"
)

func totalOf(n int64) *int64 { return &n }

func progressEvent(subID string, phase events.TransferPhase, local, remote string, bytes int64, total *int64) *events.TransferProgressEvent {
	return &events.TransferProgressEvent{
		SubSessionID: subID,
		Direction:    events.DirectionUpload,
		Phase:        phase,
		LocalPath:    local,
		RemotePath:   remote,
		Bytes:        bytes,
		Total:        total,
	}
}

func TestSinglePercentSequence(t *testing.T) {
	tr := newTracked(ModeSingle, events.DirectionUpload, "sub-1", nil)
	now := time.Now()

	steps := []struct {
		phase events.TransferPhase
		bytes int64
		want  float64
	}{
		{events.PhaseStart, 0, 0},
		{events.PhaseProgress, 500, 50},
		{events.PhaseComplete, 1000, 100},
	}
	for _, step := range steps {
		tr.applyProgress(progressEvent("sub-1", step.phase, "/l/a.bin", "/r/a.bin", step.bytes, totalOf(1000)), now)
		pct, ok := tr.view().Percent()
		if !ok {
			t.Fatalf("phase %s: percent undefined, want %.0f", step.phase, step.want)
		}
		if pct != step.want {
			t.Errorf("phase %s: percent = %.1f, want %.0f", step.phase, pct, step.want)
		}
	}
}

func TestIgnoresOtherSubSessions(t *testing.T) {
	tr := newTracked(ModeSingle, events.DirectionUpload, "sub-1", nil)
	tr.applyProgress(progressEvent("sub-2", events.PhaseProgress, "/l", "/r", 500, totalOf(1000)), time.Now())
	if tr.bytes != 0 || tr.total != nil {
		t.Errorf("bytes/total = %d/%v, events for other sub-sessions must be ignored", tr.bytes, tr.total)
	}
}

func TestBatchTotalGrowsMonotonically(t *testing.T) {
	tr := newTracked(ModeBatchUpload, events.DirectionUpload, "sub-1", nil)
	now := time.Now()

	tr.applyProgress(progressEvent("sub-1", events.PhaseStart, "/l/a", "/r/a", 0, totalOf(100)), now)
	if tr.grandTotal != 100 {
		t.Fatalf("grand total = %d, want 100 after the first file", tr.grandTotal)
	}

	// The same file's total must not be added again.
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l/a", "/r/a", 60, totalOf(100)), now)
	if tr.grandTotal != 100 {
		t.Errorf("grand total = %d after repeat total, want 100", tr.grandTotal)
	}

	// A newly discovered file grows the denominator.
	tr.applyProgress(progressEvent("sub-1", events.PhaseStart, "/l/b", "/r/b", 0, totalOf(50)), now)
	if tr.grandTotal != 150 {
		t.Errorf("grand total = %d, want 150 after the second file", tr.grandTotal)
	}
}

func TestBatchCompleteFoldsOnce(t *testing.T) {
	tr := newTracked(ModeBatchUpload, events.DirectionUpload, "sub-1", nil)
	now := time.Now()

	tr.applyProgress(progressEvent("sub-1", events.PhaseStart, "/l/a", "/r/a", 0, totalOf(100)), now)
	tr.applyProgress(progressEvent("sub-1", events.PhaseComplete, "/l/a", "/r/a", 100, totalOf(100)), now)
	if tr.completedBytes != 100 {
		t.Fatalf("completed bytes = %d, want 100", tr.completedBytes)
	}

	tr.applyProgress(progressEvent("sub-1", events.PhaseComplete, "/l/a", "/r/a", 100, totalOf(100)), now)
	if tr.completedBytes != 100 {
		t.Errorf("completed bytes = %d after duplicate complete, want still 100", tr.completedBytes)
	}
	if tr.grandTotal != 100 {
		t.Errorf("grand total = %d after duplicate complete, want 100", tr.grandTotal)
	}
}

func TestBatchPercentUndefinedWithoutTotal(t *testing.T) {
	tr := newTracked(ModeBatchUpload, events.DirectionUpload, "sub-1", nil)
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l/a", "/r/a", 10, nil), time.Now())

	if _, ok := tr.view().Percent(); ok {
		t.Error("percent must be undefined without a known total")
	}
	if got := tr.view().Done; got != 10 {
		t.Errorf("done bytes = %d, want 10", got)
	}
}

func TestBatchCurrentFileCountsTowardDone(t *testing.T) {
	tr := newTracked(ModeBatchUpload, events.DirectionUpload, "sub-1", nil)
	now := time.Now()

	tr.applyProgress(progressEvent("sub-1", events.PhaseComplete, "/l/a", "/r/a", 100, totalOf(100)), now)
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l/b", "/r/b", 30, totalOf(100)), now)

	if got := tr.view().Done; got != 130 {
		t.Errorf("done bytes = %d, want completed 100 plus in-flight 30", got)
	}
	pct, ok := tr.view().Percent()
	if !ok || pct != 65 {
		t.Errorf("percent = %.1f (%v), want 65", pct, ok)
	}
}

func TestSpeedSampling(t *testing.T) {
	tr := newTracked(ModeSingle, events.DirectionUpload, "sub-1", nil)
	base := time.Now()

	tr.applyProgress(progressEvent("sub-1", events.PhaseStart, "/l", "/r", 0, totalOf(10000)), base)
	if tr.speed != 0 {
		t.Fatalf("speed before the first interval = %f, want 0", tr.speed)
	}

	// Inside the sample interval: no update yet.
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l", "/r", 100, totalOf(10000)), base.Add(50*time.Millisecond))
	if tr.speed != 0 {
		t.Errorf("speed inside the interval = %f, want 0", tr.speed)
	}

	// 250ms after the baseline: 500 bytes in a quarter second.
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l", "/r", 500, totalOf(10000)), base.Add(250*time.Millisecond))
	if tr.speed != 2000 {
		t.Errorf("speed = %f, want 2000 bytes/s", tr.speed)
	}

	// A shrinking byte count keeps the previous reading.
	tr.applyProgress(progressEvent("sub-1", events.PhaseProgress, "/l", "/r", 100, totalOf(10000)), base.Add(500*time.Millisecond))
	if tr.speed != 2000 {
		t.Errorf("speed after a negative delta = %f, want the previous 2000", tr.speed)
	}
}
