package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/xtrntr/parimut/internal/models"

	"github.com/gorilla/websocket"
)

// ClientMsg is what a websocket client sends: subscribe/unsubscribe to an
// event's odds stream, or ping.
type ClientMsg struct {
	Type    string `json:"type"` // "subscribe", "unsubscribe", "ping"
	EventID int    `json:"event_id"`
}

// OddsUpdate is pushed to subscribers whenever a stake or settlement shifts
// an event's odds.
type OddsUpdate struct {
	Type string           `json:"type"` // "odds"
	Odds *models.OddsView `json:"odds"`
}

// client serializes writes to one connection: broadcasts arrive from many
// handler goroutines and pongs from the reader loop, but gorilla/websocket
// allows at most one concurrent writer per connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub manages websocket connections and their per-event subscriptions
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[int]map[*client]struct{}
}

// NewHub creates a hub with a custom origin policy
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[int]map[*client]struct{}),
	}
}

// HandleWS runs one connection's lifecycle: clients subscribe to any number
// of events and get dropped from all subscriptions on disconnect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cl := &client{conn: conn}
	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.EventID]; !ok {
				h.subs[msg.EventID] = make(map[*client]struct{})
			}
			h.subs[msg.EventID][cl] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.EventID]; ok {
				delete(m, cl)
				if len(m) == 0 {
					delete(h.subs, msg.EventID)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = cl.writeJSON(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	for _, set := range h.subs {
		delete(set, cl)
	}
	h.mu.Unlock()
}

// Broadcast pushes a fresh odds view to every subscriber of its event
func (h *Hub) Broadcast(view *models.OddsView) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.subs[view.EventID]))
	for c := range h.subs[view.EventID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	b, _ := json.Marshal(OddsUpdate{Type: "odds", Odds: view})
	for _, c := range clients {
		_ = c.write(b)
	}
}
