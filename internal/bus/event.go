package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds used across the daemon. Subscribers filter by namespace
// prefix, e.g. "sync." receives every synchronizer event.
const (
	KindNetOnline  = "net.online"
	KindNetOffline = "net.offline"

	KindSyncPhaseChanged   = "sync.phase_changed"
	KindSyncCompleted      = "sync.completed"
	KindSyncFailed         = "sync.failed"
	KindSyncSkippedOffline = "sync.skipped_offline"
	KindSyncOpAbandoned    = "sync.op_abandoned"

	KindAuthRequired = "auth.required"
)
