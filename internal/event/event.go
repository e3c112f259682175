package event

import "time"

// Event is a notification delivered to subscribers.
type Event struct {
	// Topic is the dot-separated event name, e.g. "debug.session.paused".
	Topic string

	// Payload carries topic-specific data.
	Payload any

	// Time is when the event was published.
	Time time.Time
}

// Handler receives events.
type Handler func(e Event)
