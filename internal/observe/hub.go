// Package observe streams live sweep progress to websocket watchers.
package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/rescue-sweep/internal/engine"
	"github.com/talgya/rescue-sweep/internal/mission"
)

// Message types
const (
	MsgTypeTick  = "tick"
	MsgTypeTrial = "trial"
	MsgTypeDone  = "done"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Message is one frame sent to watchers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TickSummary is the per-tick progress of one running trial.
type TickSummary struct {
	Shard      int     `json:"shard"`
	Trial      int     `json:"trial"`
	Tick       int     `json:"tick"`
	Time       float64 `json:"time"`
	Rescued    int     `json:"rescued"`
	Victims    int     `json:"victims"`
	DronesDone int     `json:"dronesDone"`
	Drones     int     `json:"drones"`
	Heat       float64 `json:"heat"`
	Pending    int     `json:"pending"`
}

// Summarize builds the tick frame for a snapshot.
func Summarize(shard, trialNo int, snap mission.Snapshot, sum mission.Summary) TickSummary {
	return TickSummary{
		Shard:      shard,
		Trial:      trialNo,
		Tick:       snap.Tick,
		Time:       snap.Time,
		Rescued:    sum.Rescued,
		Victims:    sum.Victims,
		DronesDone: sum.DronesDone,
		Drones:     sum.Drones,
		Heat:       sum.Heat,
		Pending:    sum.Pending,
	}
}

// isValidOrigin allows same-origin, localhost and non-browser clients.
func isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		slog.Warn("invalid origin", "origin", origin)
		return false
	}
	if r.Host == originURL.Host {
		return true
	}
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return true
	}

	slog.Warn("rejected websocket origin", "origin", origin)
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       isValidOrigin,
	EnableCompression: true,
}

// client is one connected watcher.
type client struct {
	id   int
	conn *websocket.Conn
	send chan Message
	hub  *Hub
}

// Hub fans messages out to every connected watcher. A watcher whose buffer
// is full misses the message; the sweep never waits on a slow watcher.
type Hub struct {
	mu         sync.RWMutex
	clients    map[int]*client
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}
	nextID     int
	dropped    int
}

// NewHub creates an idle hub. Call Run to start delivering.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			slog.Info("watcher connected", "client", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			slog.Info("watcher disconnected", "client", c.id)

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) fanout(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
			slog.Debug("watcher buffer full, skipping message", "client", c.id, "type", msg.Type)
		}
	}
}

// Publish queues a message for delivery. It never blocks; when the hub
// itself is backed up the message is dropped.
func (h *Hub) Publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Clients returns the number of connected watchers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// TickFunc returns a sweep tick observer that publishes every tick.
func (h *Hub) TickFunc() engine.TickFunc {
	return func(shard, trialNo int, snap mission.Snapshot, sum mission.Summary) {
		h.Publish(Message{Type: MsgTypeTick, Data: Summarize(shard, trialNo, snap, sum)})
	}
}

// ServeWS upgrades the request and registers the watcher.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.mu.Unlock()

	c := &client{id: id, conn: conn, send: make(chan Message, sendBuffer), hub: h}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards watcher input and notices disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "client", c.id, "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type teeRecorder struct {
	engine.Recorder
	hub *Hub
}

// Tee wraps rec so every saved trial is also published to watchers. rec may
// be nil, in which case results are only published.
func Tee(rec engine.Recorder, h *Hub) engine.Recorder {
	return teeRecorder{Recorder: rec, hub: h}
}

func (t teeRecorder) SaveTrial(r engine.Result) error {
	if t.Recorder != nil {
		if err := t.Recorder.SaveTrial(r); err != nil {
			return err
		}
	}
	t.hub.Publish(Message{Type: MsgTypeTrial, Data: r})
	return nil
}

func (t teeRecorder) SaveEvents(r engine.Result, events []mission.Event) error {
	if t.Recorder == nil {
		return nil
	}
	return t.Recorder.SaveEvents(r, events)
}
