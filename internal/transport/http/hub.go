package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub fans envelopes out to every websocket watching a room. It satisfies
// app.Broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*hubConn]bool
}

type hubConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:   log,
		rooms: make(map[string]map[*hubConn]bool),
	}
}

// Broadcast marshals payload once and queues it to every connection in the
// room. Slow connections are dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(roomID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast marshal failed")
		return
	}

	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("room_id", roomID).Msg("ws send buffer full, dropping connection")
			h.drop(roomID, c)
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// peer goes away. Inbound envelopes from one watcher are relayed as-is to
// the rest of the room; undecodable ones are dropped.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &hubConn{ws: ws, send: make(chan []byte, 32), done: make(chan struct{})}
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*hubConn]bool)
	}
	h.rooms[roomID][c] = true
	h.mu.Unlock()

	go func() {
		for {
			select {
			case data := <-c.send:
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					h.log.Debug().Err(err).Msg("ws write failed")
					return
				}
			case <-c.done:
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if jerr := json.Unmarshal(data, &envelope); jerr != nil || envelope.Type == "" {
			h.log.Warn().Msg("dropping undecodable client envelope")
			continue
		}
		h.relay(roomID, c, data)
	}

	h.drop(roomID, c)
	ws.Close()
}

// relay forwards a client envelope to every other connection in the room.
func (h *Hub) relay(roomID string, from *hubConn, data []byte) {
	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != from {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			h.drop(roomID, c)
		}
	}
}

// drop unregisters the connection and signals its writer. The send channel
// is never closed: a broadcaster may still be holding the connection from a
// snapshot taken before the drop, and sending to it must stay safe.
func (h *Hub) drop(roomID string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.done)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}
