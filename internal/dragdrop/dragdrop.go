// Package dragdrop maps host-level file-drag events onto the transfer
// engine. The host reports pane rectangles in logical pixels and drag
// positions in physical pixels; the gateway scales bounds by the device
// pixel ratio, tracks which pane the pointer is over, and hands dropped
// paths to a batch upload when the remote pane is a valid target.
package dragdrop

import (
	"context"
	"sync"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/render"
)

// Rect is a pane rectangle in logical pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) scaled(factor float64) Rect {
	return Rect{X: r.X * factor, Y: r.Y * factor, Width: r.Width * factor, Height: r.Height * factor}
}

func (r Rect) contains(x, y float64) bool {
	if r.Width <= 0 || r.Height <= 0 {
		return false
	}
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Hover is the drop indicator the host should render.
type Hover string

const (
	// HoverNone shows no indicator.
	HoverNone Hover = "none"
	// HoverRemote highlights the remote pane as a valid drop target.
	HoverRemote Hover = "remote"
	// HoverReject marks the hovered pane as refusing the drop. Uploads
	// only target the remote pane.
	HoverReject Hover = "reject"
)

// DropTargets is the slice of the browser the gateway consults before
// accepting a drop.
type DropTargets interface {
	Pane(side browser.Side) (browser.PaneView, bool)
	PendingConfirm() (browser.ConfirmView, bool)
}

// Uploader runs the delegated batch upload.
type Uploader interface {
	InFlight() bool
	BatchUpload(ctx context.Context, paths []string) error
}

// Gateway tracks pointer containment during a drag and delegates drops.
type Gateway struct {
	logger   *logging.Logger
	targets  DropTargets
	uploader Uploader
	observer render.Observer

	mu     sync.Mutex
	bounds map[browser.Side]Rect
	scale  float64
	hover  Hover
}

// NewGateway wires the drag-drop gateway. The scale factor starts at 1
// until the host reports one.
func NewGateway(bus *events.EventBus, targets DropTargets, uploader Uploader, observer render.Observer) *Gateway {
	if observer == nil {
		observer = render.Nop{}
	}
	return &Gateway{
		logger:   logging.NewLogger("dragdrop", bus),
		targets:  targets,
		uploader: uploader,
		observer: observer,
		bounds:   make(map[browser.Side]Rect),
		scale:    1,
		hover:    HoverNone,
	}
}

// SetPaneBounds records a pane's rectangle in logical pixels. A zero
// rectangle unregisters the pane.
func (g *Gateway) SetPaneBounds(side browser.Side, r Rect) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bounds[side] = r
}

// SetScale records the window's device pixel ratio. Non-positive factors
// are ignored.
func (g *Gateway) SetScale(factor float64) {
	if factor <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = factor
}

// Hover returns the indicator to render.
func (g *Gateway) Hover() Hover {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hover
}

// DragOver updates the hover indicator for a drag at the given physical
// pixel position.
func (g *Gateway) DragOver(x, y float64) {
	g.setHover(g.classify(x, y))
}

// DragLeave clears the hover indicator when the drag exits the window.
func (g *Gateway) DragLeave() {
	g.setHover(HoverNone)
}

// Drop delivers dropped paths at the given physical pixel position. Only a
// drop inside a valid remote pane starts a batch upload; anywhere else the
// drop is ignored.
func (g *Gateway) Drop(ctx context.Context, x, y float64, paths []string) error {
	target := g.classify(x, y)
	g.setHover(HoverNone)
	if target != HoverRemote {
		g.logger.Debug().
			Int("paths", len(paths)).
			Str("target", string(target)).
			Msg("Drop ignored")
		return nil
	}
	g.logger.Info().Int("paths", len(paths)).Msg("Drop accepted, starting batch upload")
	return g.uploader.BatchUpload(ctx, paths)
}

// classify hit-tests the position against the scaled pane bounds and folds
// in the remote pane's readiness.
func (g *Gateway) classify(x, y float64) Hover {
	g.mu.Lock()
	remote := g.bounds[browser.SideRemote].scaled(g.scale)
	local := g.bounds[browser.SideLocal].scaled(g.scale)
	g.mu.Unlock()

	switch {
	case remote.contains(x, y):
		if g.remoteReady() {
			return HoverRemote
		}
		return HoverNone
	case local.contains(x, y):
		return HoverReject
	default:
		return HoverNone
	}
}

// remoteReady reports whether the remote pane can accept a drop: a known
// working directory, no transfer running, no confirm prompt pending.
func (g *Gateway) remoteReady() bool {
	pane, ok := g.targets.Pane(browser.SideRemote)
	if !ok || pane.CWD == "" {
		return false
	}
	if g.uploader.InFlight() {
		return false
	}
	if _, pending := g.targets.PendingConfirm(); pending {
		return false
	}
	return true
}

func (g *Gateway) setHover(h Hover) {
	g.mu.Lock()
	changed := g.hover != h
	g.hover = h
	g.mu.Unlock()
	if changed {
		g.observer.Notify("dragdrop")
	}
}
