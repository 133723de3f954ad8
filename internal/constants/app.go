package constants

import (
	"time"
)

// Session lifecycle
const (
	// ShellOpenTimeout - watchdog deadline for opening a shell session (12s)
	// Expiry surfaces a timeout to the caller; the open request itself keeps
	// running and a late success is closed automatically.
	ShellOpenTimeout = 12 * time.Second

	// DefaultTerminalCols / DefaultTerminalRows - geometry used when the
	// frontend does not report a size yet
	DefaultTerminalCols = 120
	DefaultTerminalRows = 32

	// ProbeTimeout - per-address timeout for the TCP reachability probe (1s)
	ProbeTimeout = 1 * time.Second

	// DialTimeout - TCP connect and SSH handshake deadline, distinct from the
	// shell-open watchdog which covers the whole open flow
	DialTimeout = 10 * time.Second
)

// Transfers
const (
	// SpeedSampleInterval - minimum interval between transfer speed samples (200ms)
	// Samples closer together than this are folded into the previous value.
	SpeedSampleInterval = 200 * time.Millisecond

	// MaxBatchDepth - directory recursion limit for dropped-folder uploads
	MaxBatchDepth = 32

	// MaxBatchItems - total item limit (files + folders) for one dropped batch
	MaxBatchItems = 10000

	// TransferBufferSize - copy buffer for streaming file payloads (32 KiB)
	TransferBufferSize = 32 * 1024

	// ProgressEmitInterval - minimum interval between per-file progress events
	// emitted by the transfer backend (150ms); start/complete/error phases are
	// never throttled
	ProgressEmitInterval = 150 * time.Millisecond
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - additional space to require beyond file size (5%)
	// Accounts for filesystem overhead and concurrent writers.
	DiskSpaceBufferPercent = 0.05
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// NotifyThrottleInterval - minimum time between forwarded progress
	// notifications for one key (100ms); terminal phases are never throttled
	NotifyThrottleInterval = 100 * time.Millisecond
)
