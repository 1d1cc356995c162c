package xcaller

import "time"

// EventType enumerates dispatcher lifecycle events for observers.
type EventType string

const (
	EventFire             EventType = "fire"
	EventCallbackFailed   EventType = "callback_failed"
	EventSecondaryFailure EventType = "secondary_failure"
	EventPost             EventType = "post"
	EventPostFailed       EventType = "post_failed"
	EventMarshaledFailed  EventType = "marshaled_failed"
)

// Event carries telemetry for observers.
type Event struct {
	Type     EventType
	Action   string
	Invoked  int // callbacks run by a Fire
	Duration time.Duration
	Err      error
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Fired             uint64
	Invoked           uint64
	Failed            uint64
	SecondaryFailures uint64
	Posted            uint64
	PostFailed        uint64
	MarshaledFailed   uint64
	EventsDropped     uint64
	Registrations     int
	KnownActions      int
}

// PoolStats is a snapshot of an ObserverPool.
type PoolStats struct {
	Dropped      uint64 // events not queued because the buffer was full
	Processed    uint64 // events handed to their observers
	ActiveEvents int    // events queued and not yet delivered
	Workers      int
	BufferSize   int
}
