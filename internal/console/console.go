// Package console renders transfer progress and status lines for CLI mode.
// It implements the render observer: browser and engine notifications pull
// the tracked transfer into an mpb progress bar, and status lines print
// above the bar so redraws stay clean.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/transfer"
)

// TransferSource exposes the engine's tracked transfer to the renderer.
type TransferSource interface {
	Active() (transfer.TransferView, bool)
}

// UI is the CLI render observer. One progress bar tracks the active
// transfer; it appears when a transfer starts and is removed when the
// engine releases the slot.
type UI struct {
	source     TransferSource
	progress   *mpb.Progress
	isTerminal bool
	out        io.Writer

	// label is read by a bar decorator on mpb's render goroutine.
	label atomic.Value

	mu        sync.Mutex
	bar       *mpb.Bar
	totalSet  int64
	lastBytes int64
	lastTime  time.Time
}

// NewUI builds the console renderer on stderr. Progress bars render only
// when stderr is a terminal; otherwise status lines print plainly.
func NewUI(source TransferSource) *UI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		// Windows consoles need virtual terminal processing for the
		// escape sequences mpb emits.
		enableWindowsANSI(os.Stderr)
	}
	return newUI(source, os.Stderr, isTerminal)
}

func newUI(source TransferSource, out io.Writer, isTerminal bool) *UI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &UI{source: source, progress: p, isTerminal: isTerminal, out: out}
}

// Notify pulls renderer state after a core state change.
func (u *UI) Notify(reason string) {
	if reason != "transfer" {
		return
	}
	u.syncTransfer()
}

// Status prints a status line. With a bar on screen the line goes through
// mpb's writer so it lands above the bar instead of tearing it.
func (u *UI) Status(message string) {
	u.mu.Lock()
	aboveBar := u.isTerminal && u.bar != nil
	u.mu.Unlock()

	if aboveBar {
		_, _ = u.progress.Write([]byte(message + "\n"))
		return
	}
	fmt.Fprintln(u.out, message)
}

// Wait blocks until the bar area has finished rendering. Call on shutdown.
func (u *UI) Wait() {
	u.progress.Wait()
}

// Writer returns a writer that prints safely above any active bar.
func (u *UI) Writer() io.Writer {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.isTerminal && u.bar != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars render.
func (u *UI) IsTerminal() bool {
	return u.isTerminal
}

func (u *UI) syncTransfer() {
	view, ok := u.source.Active()

	u.mu.Lock()
	defer u.mu.Unlock()

	if !ok {
		u.dropBarLocked()
		return
	}
	u.label.Store(transferLabel(view))
	if !u.isTerminal {
		return
	}

	var total int64
	if view.Total != nil {
		total = *view.Total
	}
	if u.bar == nil {
		u.startBarLocked(total)
	}
	// Batch totals grow as files are discovered.
	if total > u.totalSet {
		u.bar.SetTotal(total, false)
		u.totalSet = total
	}

	now := time.Now()
	delta := view.Done - u.lastBytes
	if delta < 0 {
		delta = 0
	}
	// Zero-delta updates still feed the EWMA so speed and ETA keep
	// tracking elapsed time.
	u.bar.EwmaIncrBy(int(delta), now.Sub(u.lastTime))
	u.lastBytes = view.Done
	u.lastTime = now
}

func (u *UI) startBarLocked(total int64) {
	u.totalSet = total
	u.lastBytes = 0
	u.lastTime = time.Now()
	u.bar = u.progress.New(total,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				label, _ := u.label.Load().(string)
				return label
			}, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(s decor.Statistics) string {
				return percentText(s.Current, s.Total)
			}, decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
}

// dropBarLocked removes the bar once the engine releases the transfer slot.
// The outcome line arrives separately as a status message.
func (u *UI) dropBarLocked() {
	if u.bar == nil {
		return
	}
	u.bar.Abort(true)
	u.bar = nil
	u.totalSet = 0
	u.lastBytes = 0
	u.label.Store("")
}

// percentText formats a percentage, or a placeholder while the total is
// still unknown.
func percentText(current, total int64) string {
	if total <= 0 {
		return "   --%"
	}
	pct := float64(current) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%6.2f%%", pct)
}

// transferLabel names the bar after the transfer: single transfers show the
// file and its far end, batches show the file currently moving.
func transferLabel(v transfer.TransferView) string {
	switch {
	case v.Mode == transfer.ModeBatchUpload && v.LocalPath == "":
		return "batch upload"
	case v.Mode == transfer.ModeBatchUpload:
		return fmt.Sprintf("batch upload: %s", filepath.Base(v.LocalPath))
	case v.Direction == events.DirectionDownload:
		return fmt.Sprintf("%s ← %s", filepath.Base(v.LocalPath), truncateTarget(v.RemotePath))
	default:
		return fmt.Sprintf("%s → %s", filepath.Base(v.LocalPath), truncateTarget(v.RemotePath))
	}
}

// truncateTarget keeps the last two components of a long path.
func truncateTarget(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) <= 2 {
		return p
	}
	return ".../" + strings.Join(parts[len(parts)-2:], "/")
}
