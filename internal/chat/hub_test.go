package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoute(t *testing.T) {
	h := NewHub()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	res, err := h.Route(context.Background(), Message{ID: "m1", UserID: "u1", RoomID: "lobby", Content: "hi", At: at})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "lobby", res.RoomID)

	history := h.RoomHistory("lobby")
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
	assert.Empty(t, h.RoomHistory("elsewhere"))
}

func TestHubConcurrentRoutes(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.Route(context.Background(), Message{ID: fmt.Sprintf("m%d", i), UserID: "u1", RoomID: "lobby"})
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.RoomHistory("lobby"), 50)
}

func TestMessageIsCommand(t *testing.T) {
	assert.False(t, Message{Content: "hello"}.IsCommand())
	assert.True(t, Message{Content: "/roll", Command: "roll"}.IsCommand())
}
