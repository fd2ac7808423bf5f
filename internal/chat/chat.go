// Package chat defines the message envelope and the contracts the adversarial
// layer mediates between: the baseline router that always runs, and the
// delivery sink that receives outbound events.
package chat

import (
	"context"
	"time"
)

// Message is one inbound chat message, already trimmed/normalized by the
// transport before it reaches this core.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	Command   string    `json:"command,omitempty"` // non-empty for slash-style commands
	At        time.Time `json:"at"`
}

// IsCommand reports whether the message is a command invocation.
func (m Message) IsCommand() bool { return m.Command != "" }

// RoutingResult is the baseline router's outcome. Opaque to the adversarial
// layer: it is attached to the final result but never inspected or mutated.
type RoutingResult struct {
	MessageID string
	RoomID    string
	Accepted  bool
	Detail    string
}

// BaselineRouter is the always-run routing logic. External to this core;
// the in-memory Hub below is the stand-in used by the binary and tests.
type BaselineRouter interface {
	Route(ctx context.Context, msg Message) (RoutingResult, error)
}

// Sink receives outbound payloads for delivery to the user. Implementations
// must not block for long; delivery retries are the transport's problem.
type Sink interface {
	Deliver(ctx context.Context, userID string, payload any) error
}
