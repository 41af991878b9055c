package http

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// registerConn plants a connection with a tiny buffer and no writer
// goroutine, so the send buffer fills and broadcasts hit the drop path.
func registerConn(h *Hub, roomID string) *hubConn {
	c := &hubConn{send: make(chan []byte, 1), done: make(chan struct{})}
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*hubConn]bool)
	}
	h.rooms[roomID][c] = true
	h.mu.Unlock()
	return c
}

func TestBroadcastToDroppedConnDoesNotPanic(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := registerConn(h, "room-1")
	c.send <- []byte(`{"type":"filler"}`)

	// The connection goes away between a broadcaster's registry snapshot and
	// its send attempt.
	h.drop("room-1", c)
	h.Broadcast("room-1", map[string]string{"type": "game_started"})
	h.relay("room-1", nil, []byte(`{"type":"relay"}`))

	select {
	case <-c.done:
	default:
		t.Fatalf("expected dropped connection's writer to be signalled")
	}
}

func TestConcurrentBroadcastAndDrop(t *testing.T) {
	h := NewHub(zerolog.Nop())

	for i := 0; i < 200; i++ {
		c := registerConn(h, "room-1")
		c.send <- []byte(`{"type":"filler"}`)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.Broadcast("room-1", map[string]string{"type": "player_joined"})
		}()
		go func() {
			defer wg.Done()
			h.Broadcast("room-1", map[string]string{"type": "answer_submitted"})
		}()
		go func() {
			defer wg.Done()
			h.drop("room-1", c)
		}()
		wg.Wait()
	}
}

func TestDropIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := registerConn(h, "room-1")

	h.drop("room-1", c)
	h.drop("room-1", c)

	h.mu.RLock()
	_, exists := h.rooms["room-1"]
	h.mu.RUnlock()
	if exists {
		t.Fatalf("expected empty room to be removed from the registry")
	}
}
