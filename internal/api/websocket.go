package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/optimization"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow
	clientBuffer = 64
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeRunStatus   MessageType = "run_status"
	MessageTypeProgress    MessageType = "progress"
	MessageTypeRunFinished MessageType = "run_finished"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// RunSnapshot is the data of run_status and run_finished messages
type RunSnapshot struct {
	Status            backtest.RunStatus    `json:"status"`
	Progress          optimization.Progress `json:"progress"`
	TotalCombinations uint64                `json:"total_combinations"`
	BestScore         *float64              `json:"best_score,omitempty"`
	Error             string                `json:"error,omitempty"`
}

// Client is one WebSocket connection following a run
type Client struct {
	hub   *Hub
	runID uuid.UUID
	conn  *websocket.Conn
	send  chan []byte
}

// delivery is a message for the followers of a run, or for one client when
// client is set. Final deliveries close the receiving clients.
type delivery struct {
	runID   uuid.UUID
	client  *Client
	payload []byte
	final   bool
}

// Hub fans run events out to the clients following each run
type Hub struct {
	// Registered clients by run
	clients map[uuid.UUID]map[*Client]bool

	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. Every client is closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, followers := range h.clients {
				for client := range followers {
					close(client.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.runID] == nil {
				h.clients[client.runID] = make(map[*Client]bool)
			}
			h.clients[client.runID][client] = true
			h.mu.Unlock()
			log.Info().
				Str("run_id", client.runID.String()).
				Int("total_clients", h.ClientCount()).
				Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			removed := h.remove(client)
			h.mu.Unlock()
			if removed {
				log.Info().
					Str("run_id", client.runID.String()).
					Int("total_clients", h.ClientCount()).
					Msg("WebSocket client disconnected")
			}

		case d := <-h.deliver:
			h.mu.Lock()
			for client := range h.clients[d.runID] {
				if d.client != nil && d.client != client {
					continue
				}
				select {
				case client.send <- d.payload:
					if d.final {
						h.remove(client)
					}
				default:
					// Client's send channel is full, close it
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes and forgets client; callers hold h.mu
func (h *Hub) remove(client *Client) bool {
	followers := h.clients[client.runID]
	if !followers[client] {
		return false
	}
	delete(followers, client)
	if len(followers) == 0 {
		delete(h.clients, client.runID)
	}
	close(client.send)
	return true
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// Publish forwards a run event to the run's followers. It is registered with
// the run manager and blocks only while the delivery queue is full.
func (h *Hub) Publish(ev backtest.RunEvent) {
	msgType, data := MessageTypeProgress, any(ev.Progress)
	if ev.Final() {
		msgType = MessageTypeRunFinished
		data = RunSnapshot{Status: ev.Status, Progress: ev.Progress, TotalCombinations: ev.Progress.Total, Error: ev.Error}
	}
	payload, err := encodeMessage(msgType, ev.RunID, data)
	if err != nil {
		log.Error().Err(err).Str("run_id", ev.RunID.String()).Msg("Failed to encode run event")
		return
	}
	h.enqueue(delivery{runID: ev.RunID, payload: payload, final: ev.Final()})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, followers := range h.clients {
		n += len(followers)
	}
	return n
}

func encodeMessage(msgType MessageType, runID uuid.UUID, data any) ([]byte, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	msg := Message{Type: msgType, Timestamp: time.Now(), Data: dataBytes}
	if runID != uuid.Nil {
		msg.RunID = runID.String()
	}
	return json.Marshal(msg)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleRunStream follows a run over a WebSocket: the current state first,
// then progress after every evaluation, then run_finished before the server
// closes the connection
func (s *Server) handleRunStream(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	if _, err := s.runs.Get(c.Request.Context(), id); err != nil {
		s.runError(c, id, "stream", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{hub: s.hub, runID: id, conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	// The snapshot is read after registering so a run ending in between still
	// reaches the client as run_finished.
	run, err := s.runs.Get(context.WithoutCancel(c.Request.Context()), id)
	if err != nil {
		s.hub.enqueue(delivery{runID: id, client: client, final: true})
		return
	}
	snapshot := RunSnapshot{
		Status:            run.Status,
		TotalCombinations: run.TotalCombinations,
		BestScore:         run.BestScore,
		Error:             run.ErrorMessage,
		Progress:          optimization.Progress{Completed: run.Evaluated + run.Failed, Failed: run.Failed},
	}
	if p, active := s.runs.Progress(id); active {
		snapshot.Progress = p
	}
	if snapshot.Progress.Total == 0 {
		snapshot.Progress.Total = optimization.NewEnumerator(run.Space).Len()
	}

	payload, err := encodeMessage(MessageTypeRunStatus, id, snapshot)
	if err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to encode run status")
		return
	}
	s.hub.enqueue(delivery{runID: id, client: client, payload: payload})
	if run.Status.Terminal() {
		finished, err := encodeMessage(MessageTypeRunFinished, id, snapshot)
		if err != nil {
			return
		}
		s.hub.enqueue(delivery{runID: id, client: client, payload: finished, final: true})
	}
}

// readPump keeps the read deadline moving and answers client pings until the
// connection closes
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes one message per frame and closes the connection once the
// hub closes the send channel
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if len(message) == 0 {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage processes messages received from the client
func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Msg("Failed to parse client message")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		pong, err := encodeMessage(MessageTypePong, c.runID, struct{}{})
		if err != nil {
			return
		}
		c.hub.enqueue(delivery{runID: c.runID, client: c, payload: pong})
	default:
		log.Debug().
			Str("type", string(msg.Type)).
			Msg("Received client message")
	}
}
