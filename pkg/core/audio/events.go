package audio

import "time"

// Event is posted by the engine to its owner. Owners receive events on
// a channel and dispatch them on their own goroutine rather than
// running logic inside capture callbacks.
type Event interface {
	EventType() string
}

// ChunkReadyEvent is posted when a processed audio chunk has been
// appended to the mixed stream.
type ChunkReadyEvent struct {
	Leg        Leg
	Offset     time.Duration
	DurationMs int
}

func (e ChunkReadyEvent) EventType() string { return "chunk_ready" }

// QualityUpdatedEvent carries a periodic quality snapshot.
type QualityUpdatedEvent struct {
	Metrics QualityMetrics
}

func (e QualityUpdatedEvent) EventType() string { return "quality_updated" }

// SessionDrainedEvent is posted exactly once after Stop has flushed the
// mixed stream. A finalize must not complete before this event.
type SessionDrainedEvent struct {
	Result *Result
}

func (e SessionDrainedEvent) EventType() string { return "session_drained" }
