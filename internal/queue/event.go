// Package queue defines message payloads exchanged over the message broker.
package queue

// AuthEvent is published on authentication activity so downstream
// consumers can log, alert or feed analytics without querying the primary
// database. Kind is one of the Kind* constants; UserID is zero when the
// event could not be attributed (e.g. reuse of an unattributable token).
type AuthEvent struct {
	Kind       string `json:"kind"`
	UserID     uint64 `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// Event kinds carried by AuthEvent.
const (
	KindLoggedIn      = "auth.logged_in"
	KindLoggedOut     = "auth.logged_out"
	KindTokenRotated  = "token.rotated"
	KindReuseDetected = "token.reuse_detected"
)

// EventsQueueName is the durable queue all auth events are published to.
const EventsQueueName = "auth.events"
