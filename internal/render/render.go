// Package render defines the observer contract between the orchestration
// core and whatever frontend displays it. The core mutates its own state and
// calls Notify; the frontend decides what redrawing means. Status carries
// user-facing status and error lines.
package render

// Observer receives state-change notifications and status text from the
// core controllers.
type Observer interface {
	// Notify signals that observable state changed. reason is a short
	// machine-readable tag such as "tabs" or "browser".
	Notify(reason string)

	// Status carries a user-facing status or error line.
	Status(message string)
}

// Nop discards everything. Tests and headless runs use it.
type Nop struct{}

func (Nop) Notify(string) {}
func (Nop) Status(string) {}

// Funcs adapts plain functions to Observer. Nil functions are no-ops.
type Funcs struct {
	NotifyFunc func(reason string)
	StatusFunc func(message string)
}

func (f Funcs) Notify(reason string) {
	if f.NotifyFunc != nil {
		f.NotifyFunc(reason)
	}
}

func (f Funcs) Status(message string) {
	if f.StatusFunc != nil {
		f.StatusFunc(message)
	}
}
