package chat

import (
	"context"
	"log"
	"sync"
)

// Hub is a minimal in-memory baseline router: it appends each message to its
// room history and accepts it. Production deployments substitute their own
// BaselineRouter; the Hub exists so the binary runs end to end.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string][]Message
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string][]Message)}
}

// Route implements BaselineRouter.
func (h *Hub) Route(ctx context.Context, msg Message) (RoutingResult, error) {
	h.mu.Lock()
	h.rooms[msg.RoomID] = append(h.rooms[msg.RoomID], msg)
	n := len(h.rooms[msg.RoomID])
	h.mu.Unlock()

	log.Printf("[CHAT] routed msg=%s room=%s user=%s len=%d", msg.ID, msg.RoomID, msg.UserID, n)
	return RoutingResult{MessageID: msg.ID, RoomID: msg.RoomID, Accepted: true}, nil
}

// RoomHistory returns a copy of the messages routed to a room.
func (h *Hub) RoomHistory(roomID string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.rooms[roomID]))
	copy(out, h.rooms[roomID])
	return out
}

// LogSink is a Sink that writes payloads to the process log. Used by the
// binary when no transport is wired.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, userID string, payload any) error {
	log.Printf("[CHAT] deliver user=%s payload=%+v", userID, payload)
	return nil
}
