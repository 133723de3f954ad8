// Package notify sends desktop notifications for transfer and session
// milestones. It uses github.com/gen2brain/beeep for cross-platform
// notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
)

// Notifier sends desktop notifications, gated per category by the
// notification settings.
type Notifier struct {
	logger *logging.Logger

	mu  sync.RWMutex
	cfg config.NotificationConfig
}

// NewNotifier creates a notifier with the given settings.
func NewNotifier(cfg config.NotificationConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewLogger("notify", nil)
	}
	return &Notifier{logger: logger, cfg: cfg}
}

// SetConfig swaps the notification settings at runtime.
func (n *Notifier) SetConfig(cfg config.NotificationConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg = cfg
}

// Enabled reports whether notifications are enabled at all.
func (n *Notifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled
}

func (n *Notifier) allowed(pick func(config.NotificationConfig) bool) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled && pick(n.cfg)
}

// TransferComplete sends a notification for a finished single transfer.
func (n *Notifier) TransferComplete(direction events.TransferDirection, name, destPath string) {
	if !n.allowed(func(c config.NotificationConfig) bool { return c.ShowTransferComplete }) {
		return
	}

	verb := "uploaded"
	if direction == events.DirectionDownload {
		verb = "downloaded"
	}
	message := fmt.Sprintf("%q %s to:\n%s", truncate(name, 40), verb, shortenPath(destPath))

	if err := n.send("Transfer Complete", message); err != nil {
		n.logger.Warn().Err(err).Str("name", name).Msg("Failed to send transfer complete notification")
	}
}

// BatchComplete sends the batch summary as a notification.
func (n *Notifier) BatchComplete(summary string) {
	if !n.allowed(func(c config.NotificationConfig) bool { return c.ShowTransferComplete }) {
		return
	}

	if err := n.send("Transfer Complete", truncate(summary, 120)); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send batch summary notification")
	}
}

// TransferFailed sends a notification for a failed transfer.
func (n *Notifier) TransferFailed(name string, errMsg string) {
	if !n.allowed(func(c config.NotificationConfig) bool { return c.ShowTransferFailed }) {
		return
	}

	message := fmt.Sprintf("%q failed:\n%s", truncate(name, 40), truncate(errMsg, 100))

	if err := n.send("Transfer Failed", message); err != nil {
		n.logger.Warn().Err(err).Str("name", name).Msg("Failed to send transfer failed notification")
	}
}

// SessionEnded sends a notification when a session's tab closes on its own.
func (n *Notifier) SessionEnded(title string, exitCode int) {
	if !n.allowed(func(c config.NotificationConfig) bool { return c.ShowSessionEnded }) {
		return
	}

	message := fmt.Sprintf("Session %q ended.", truncate(title, 40))
	if exitCode != 0 {
		message = fmt.Sprintf("Session %q exited with code %d.", truncate(title, 40), exitCode)
	}

	if err := n.send("Session Ended", message); err != nil {
		n.logger.Warn().Err(err).Str("session", title).Msg("Failed to send session ended notification")
	}
}

// send is the internal method that actually sends the notification.
func (n *Notifier) send(title, message string) error {
	// beeep.Notify is cross-platform:
	// - Windows: Uses toast notifications
	// - macOS: Uses NSUserNotificationCenter
	// - Linux: Uses D-Bus notifications
	return beeep.Notify(title, message, "")
}

// Alert sends an alert notification (error level).
// This is for critical issues that require user attention.
func (n *Notifier) Alert(message string) {
	if !n.Enabled() {
		return
	}

	title := "Portico Alert"

	// Use beeep.Alert which shows a more prominent notification on some platforms
	if err := beeep.Alert(title, message, ""); err != nil {
		// Fall back to regular notify
		if err := n.send(title, message); err != nil {
			n.logger.Error().Err(err).Str("message", message).Msg("Failed to send alert notification")
		}
	}
}

// Beep sends an audible beep notification.
// Useful for drawing attention without a visual notification.
func (n *Notifier) Beep() {
	if !n.Enabled() {
		return
	}

	_ = beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	// Try to show drive/root + ... + last 2 path components
	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))

	// Build shortened path
	short := filepath.Join("...", parentDir, file)

	// Add volume/drive if there's room
	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}

	// If still too long, just truncate
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}

	return short
}
