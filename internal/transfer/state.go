package transfer

import (
	"time"

	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
)

// Mode distinguishes a single tracked file transfer from a recursive batch
// upload.
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeBatchUpload Mode = "batch-upload"
)

// trackedTransfer aggregates progress events for the one transfer the engine
// allows at a time. The engine's mutex guards all access.
//
// In single mode the counters mirror the event stream. In batch mode files
// are keyed by (local path, remote path): the first total seen for a key
// grows the grand total, so the denominator only ever grows as files are
// discovered, and a key's bytes fold into the completed base exactly once
// however many complete events arrive for it.
type trackedTransfer struct {
	mode      Mode
	direction events.TransferDirection
	subID     string

	localPath  string
	remotePath string
	bytes      int64
	total      *int64

	grandTotal     int64
	totalKnown     map[string]bool
	completed      map[string]bool
	completedBytes int64

	lastSampleAt    time.Time
	lastSampleBytes int64
	speed           float64
}

func newTracked(mode Mode, direction events.TransferDirection, subID string, total *int64) *trackedTransfer {
	t := &trackedTransfer{
		mode:      mode,
		direction: direction,
		subID:     subID,
	}
	if total != nil {
		v := *total
		t.total = &v
	}
	if mode == ModeBatchUpload {
		t.totalKnown = make(map[string]bool)
		t.completed = make(map[string]bool)
	}
	return t
}

func fileKey(localPath, remotePath string) string {
	return localPath + "\x00" + remotePath
}

// applyProgress folds one backend event into the counters. Events for other
// sub-sessions are ignored.
func (t *trackedTransfer) applyProgress(ev *events.TransferProgressEvent, now time.Time) {
	if ev.SubSessionID != t.subID {
		return
	}

	switch t.mode {
	case ModeSingle:
		t.localPath = ev.LocalPath
		t.remotePath = ev.RemotePath
		if ev.Phase != events.PhaseError {
			t.bytes = ev.Bytes
		}
		if ev.Total != nil {
			v := *ev.Total
			t.total = &v
		}

	case ModeBatchUpload:
		key := fileKey(ev.LocalPath, ev.RemotePath)
		if ev.Total != nil && !t.totalKnown[key] {
			t.totalKnown[key] = true
			t.grandTotal += *ev.Total
		}
		switch ev.Phase {
		case events.PhaseStart, events.PhaseProgress:
			t.localPath = ev.LocalPath
			t.remotePath = ev.RemotePath
			t.bytes = ev.Bytes
		case events.PhaseComplete:
			if !t.completed[key] {
				t.completed[key] = true
				t.completedBytes += ev.Bytes
			}
			t.localPath = ""
			t.remotePath = ""
			t.bytes = 0
		case events.PhaseError:
			t.localPath = ""
			t.remotePath = ""
			t.bytes = 0
		}
	}

	t.sampleSpeed(now)
}

func (t *trackedTransfer) doneBytes() int64 {
	if t.mode == ModeBatchUpload {
		return t.completedBytes + t.bytes
	}
	return t.bytes
}

// sampleSpeed recomputes the transfer rate, at most once per sample
// interval. A negative delta keeps the previous reading.
func (t *trackedTransfer) sampleSpeed(now time.Time) {
	done := t.doneBytes()
	if t.lastSampleAt.IsZero() {
		t.lastSampleAt = now
		t.lastSampleBytes = done
		return
	}
	elapsed := now.Sub(t.lastSampleAt)
	if elapsed < constants.SpeedSampleInterval {
		return
	}
	if delta := done - t.lastSampleBytes; delta >= 0 {
		t.speed = float64(delta) / elapsed.Seconds()
	}
	t.lastSampleAt = now
	t.lastSampleBytes = done
}

func (t *trackedTransfer) view() TransferView {
	v := TransferView{
		Mode:       t.mode,
		Direction:  t.direction,
		LocalPath:  t.localPath,
		RemotePath: t.remotePath,
		Done:       t.doneBytes(),
		Speed:      t.speed,
	}
	switch t.mode {
	case ModeSingle:
		if t.total != nil {
			total := *t.total
			v.Total = &total
		}
	case ModeBatchUpload:
		if t.grandTotal > 0 {
			total := t.grandTotal
			v.Total = &total
		}
	}
	return v
}

// TransferView is a read-only snapshot of the tracked transfer.
type TransferView struct {
	Mode       Mode
	Direction  events.TransferDirection
	LocalPath  string
	RemotePath string
	Done       int64
	Total      *int64
	Speed      float64 // bytes per second, zero until the first sample
}

// Percent returns the completion percentage. It is undefined until a
// positive total is known.
func (v TransferView) Percent() (float64, bool) {
	if v.Total == nil || *v.Total <= 0 {
		return 0, false
	}
	p := float64(v.Done) / float64(*v.Total) * 100
	if p > 100 {
		p = 100
	}
	return p, true
}
