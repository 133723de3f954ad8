package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/portico-labs/portico/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Shell session events
	EventShellOutput EventType = "shell_output" // Terminal output chunk
	EventShellExit   EventType = "shell_exit"   // Session process exited

	// Remote-desktop session events
	EventDesktopLifecycle EventType = "desktop_lifecycle" // Connection phase change
	EventDesktopExit      EventType = "desktop_exit"      // Session ended

	// Transfer sub-session events
	EventTransferProgress EventType = "transfer_progress" // Per-file byte progress

	// UI-facing state notifications
	EventTabChange     EventType = "tab_change"     // Tab set / active tab changed
	EventBrowserChange EventType = "browser_change" // File browser state changed

	EventLog EventType = "log"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ShellOutputEvent carries a chunk of terminal output for a shell session.
type ShellOutputEvent struct {
	BaseEvent
	SessionID string
	Data      []byte
}

// ShellExitEvent signals that a shell session's process has exited.
type ShellExitEvent struct {
	BaseEvent
	SessionID string
	Code      int
}

// DesktopPhase identifies a point in the remote-desktop connection lifecycle.
type DesktopPhase string

const (
	DesktopConnecting     DesktopPhase = "connecting"
	DesktopConnected      DesktopPhase = "connected"
	DesktopLoginComplete  DesktopPhase = "loginComplete"
	DesktopDisconnected   DesktopPhase = "disconnected"
	DesktopFatalError     DesktopPhase = "fatalError"
	DesktopLogonError     DesktopPhase = "logonError"
	DesktopHostInitFailed DesktopPhase = "hostInitFailed"
)

// DesktopLifecycleEvent reports a remote-desktop connection phase change.
// Reason is set for disconnected, Code for fatalError/logonError, and
// Stage/HResult/Message for hostInitFailed.
type DesktopLifecycleEvent struct {
	BaseEvent
	SessionID string
	Phase     DesktopPhase
	Reason    int
	Code      int
	Stage     string
	HResult   *int32
	Message   string
}

// DesktopExitEvent signals that a remote-desktop session ended.
type DesktopExitEvent struct {
	BaseEvent
	SessionID string
	Detail    string
}

// TransferDirection distinguishes uploads from downloads.
type TransferDirection string

const (
	DirectionUpload   TransferDirection = "upload"
	DirectionDownload TransferDirection = "download"
)

// TransferPhase identifies a point in a single file transfer.
type TransferPhase string

const (
	PhaseStart    TransferPhase = "start"
	PhaseProgress TransferPhase = "progress"
	PhaseComplete TransferPhase = "complete"
	PhaseError    TransferPhase = "error"
)

// TransferProgressEvent carries byte-level progress for one file within a
// transfer sub-session. Total is nil when the backend does not know the
// file size up front.
type TransferProgressEvent struct {
	BaseEvent
	SubSessionID string
	Direction    TransferDirection
	Phase        TransferPhase
	LocalPath    string
	RemotePath   string
	Bytes        int64
	Total        *int64
	Err          error
}

// TabChangeEvent notifies observers that the tab set or active tab changed.
type TabChangeEvent struct {
	BaseEvent
	Key    string
	Reason string
}

// BrowserChangeEvent notifies observers that file-browser state changed.
type BrowserChangeEvent struct {
	BaseEvent
	SessionID string
	Reason    string
}

// LogEvent represents log messages routed through the bus.
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Scope   string
	Error   error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers (non-blocking)
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			// Channel full - event dropped; counter tracked for monitoring
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, scope string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:   level,
		Message: message,
		Scope:   scope,
		Error:   err,
	})
}

// PublishShellOutput is a convenience method for publishing shell output.
func (eb *EventBus) PublishShellOutput(sessionID string, data []byte) {
	eb.Publish(&ShellOutputEvent{
		BaseEvent: BaseEvent{
			EventType: EventShellOutput,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Data:      data,
	})
}

// PublishShellExit is a convenience method for publishing a shell exit code.
func (eb *EventBus) PublishShellExit(sessionID string, code int) {
	eb.Publish(&ShellExitEvent{
		BaseEvent: BaseEvent{
			EventType: EventShellExit,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Code:      code,
	})
}

// PublishDesktopLifecycle stamps and publishes a desktop phase change. The
// caller fills the phase-specific fields before passing the event in.
func (eb *EventBus) PublishDesktopLifecycle(event *DesktopLifecycleEvent) {
	event.EventType = EventDesktopLifecycle
	event.Time = time.Now()
	eb.Publish(event)
}

// PublishDesktopExit is a convenience method for publishing a desktop
// session end.
func (eb *EventBus) PublishDesktopExit(sessionID, detail string) {
	eb.Publish(&DesktopExitEvent{
		BaseEvent: BaseEvent{
			EventType: EventDesktopExit,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Detail:    detail,
	})
}

// PublishTransferProgress is a convenience method for per-file progress.
func (eb *EventBus) PublishTransferProgress(subSessionID string, dir TransferDirection, phase TransferPhase, localPath, remotePath string, bytes int64, total *int64, err error) {
	eb.Publish(&TransferProgressEvent{
		BaseEvent: BaseEvent{
			EventType: EventTransferProgress,
			Time:      time.Now(),
		},
		SubSessionID: subSessionID,
		Direction:    dir,
		Phase:        phase,
		LocalPath:    localPath,
		RemotePath:   remotePath,
		Bytes:        bytes,
		Total:        total,
		Err:          err,
	})
}

// PublishTabChange is a convenience method for tab set / active tab changes.
func (eb *EventBus) PublishTabChange(key, reason string) {
	eb.Publish(&TabChangeEvent{
		BaseEvent: BaseEvent{
			EventType: EventTabChange,
			Time:      time.Now(),
		},
		Key:    key,
		Reason: reason,
	})
}

// PublishBrowserChange is a convenience method for file-browser state changes.
func (eb *EventBus) PublishBrowserChange(sessionID, reason string) {
	eb.Publish(&BrowserChangeEvent{
		BaseEvent: BaseEvent{
			EventType: EventBrowserChange,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Reason:    reason,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			// Remove channel by replacing with last element and truncating
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
