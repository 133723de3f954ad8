package sshx

import (
	"context"
	"io"
	"time"

	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
)

// progressTracker accumulates transferred bytes for one file and publishes
// throttled progress events on the bus. It is used from a single copy loop
// and needs no locking.
type progressTracker struct {
	ts         *transferSession
	direction  events.TransferDirection
	localPath  string
	remotePath string
	total      *int64

	transferred int64
	lastEmit    time.Time
}

func (ts *transferSession) newTracker(direction events.TransferDirection, localPath, remotePath string, total *int64) *progressTracker {
	return &progressTracker{
		ts:         ts,
		direction:  direction,
		localPath:  localPath,
		remotePath: remotePath,
		total:      total,
		lastEmit:   time.Now(),
	}
}

func (pt *progressTracker) add(n int) {
	pt.transferred += int64(n)
	now := time.Now()
	if now.Sub(pt.lastEmit) < constants.ProgressEmitInterval {
		return
	}
	pt.lastEmit = now
	pt.ts.emit(events.PhaseProgress, pt.direction, pt.localPath, pt.remotePath, pt.transferred, pt.total, nil)
}

func (pt *progressTracker) count() int64 { return pt.transferred }

// trackedReader counts bytes flowing out of the wrapped reader and honors
// context cancellation between reads.
type trackedReader struct {
	ctx     context.Context
	r       io.Reader
	tracker *progressTracker
}

func newTrackedReader(ctx context.Context, r io.Reader, tracker *progressTracker) *trackedReader {
	return &trackedReader{ctx: ctx, r: r, tracker: tracker}
}

func (tr *trackedReader) Read(p []byte) (int, error) {
	if err := tr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := tr.r.Read(p)
	if n > 0 {
		tr.tracker.add(n)
	}
	return n, err
}

// trackedWriter counts bytes flowing into the wrapped writer and honors
// context cancellation between writes.
type trackedWriter struct {
	ctx     context.Context
	w       io.Writer
	tracker *progressTracker
}

func newTrackedWriter(ctx context.Context, w io.Writer, tracker *progressTracker) *trackedWriter {
	return &trackedWriter{ctx: ctx, w: w, tracker: tracker}
}

func (tw *trackedWriter) Write(p []byte) (int, error) {
	if err := tw.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := tw.w.Write(p)
	if n > 0 {
		tw.tracker.add(n)
	}
	return n, err
}
