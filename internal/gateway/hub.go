package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// replayCapacity covers roughly half a day of 5-minute polls.
const replayCapacity = 144

// Hub fans tick results out to connected WebSocket clients and keeps a
// replay buffer so new clients catch up on recent ticks at connect time.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replayCapacity),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from arbitrary origins in dev.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// envelope wraps a payload with a sequence number and timestamp.
type envelope struct {
	Seq  int64       `json:"seq"`
	TS   string      `json:"ts"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcast sends payload to every connected client and records it for
// replay. Slow clients get dropped frames, never a blocked broadcast.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	data, err := json.Marshal(envelope{
		Seq:  seq,
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Type: msgType,
		Data: payload,
	})
	if err != nil {
		log.Printf("[gateway] broadcast marshal: %v", err)
		return
	}
	h.replay.Push(seq, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full; it will catch up from the replay
			// buffer after reconnecting.
		}
	}
}

// ServeWS upgrades the connection, registers the client, and replays
// buffered ticks before live traffic.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	c := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", n)

	for _, data := range h.replay.Since(0) {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	go c.readPump()
}

// removeClient unregisters a client and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
