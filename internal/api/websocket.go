package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
)

// Message types on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelEvents carries every triggered event. Appending ":" and a
	// node id narrows it to events whose source is that node.
	ChannelEvents = "events"

	wsQueueSize = 256
)

// EventPayload is the JSON form of a triggered event.
type EventPayload struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	SourceNode  string         `json:"source_node"`
	SourceName  string         `json:"source_name,omitempty"`
	Message     string         `json:"message,omitempty"`
	Severity    uint16         `json:"severity"`
	Time        time.Time      `json:"time"`
	ReceiveTime time.Time      `json:"receive_time"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// WSMessage is one frame on the event stream, in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels. MinSeverity, when set on a
// subscribe, drops events below that severity (1..1000) for the whole
// connection.
type WSSubscribePayload struct {
	Channels    []string `json:"channels"`
	MinSeverity uint16   `json:"min_severity,omitempty"`
}

// inbound is WSMessage with the payload left undecoded.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans triggered events out to WebSocket clients. The stream is
// read-only: clients choose channels and receive events, nothing more.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu          sync.RWMutex
	channels    map[string]struct{}
	minSeverity uint16
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*wsClient]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// BroadcastEvent is an addrspace.EventSink. It runs on the server
// goroutine and never blocks: a client whose queue is full misses the
// event.
func (h *Hub) BroadcastEvent(ev addrspace.Event) {
	source := ev.SourceNode.String()
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelEvents,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload: EventPayload{
			EventID:     hex.EncodeToString(ev.EventID),
			EventType:   ev.EventType.String(),
			SourceNode:  source,
			SourceName:  ev.SourceName,
			Message:     ev.Message.Text,
			Severity:    ev.Severity,
			Time:        ev.Time,
			ReceiveTime: ev.ReceiveTime,
			Fields:      ev.Fields,
		},
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "error", err)
		return
	}

	narrow := ChannelEvents + ":" + source
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(narrow, ev.Severity) {
			c.enqueue(frame)
		}
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		out:      make(chan []byte, wsQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}

func (c *wsClient) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the frame when the client is gone or its queue is full.
func (c *wsClient) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.out <- frame:
	default:
	}
}

func (c *wsClient) wants(narrow string, severity uint16) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if severity < c.minSeverity {
		return false
	}
	_, all := c.channels[ChannelEvents]
	_, one := c.channels[narrow]
	return all || one
}

func (c *wsClient) deadlines() (idle, write time.Duration) {
	ping := time.Duration(c.hub.cfg.PingInterval) * time.Second
	pong := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	return ping + pong, pong
}

func (c *wsClient) readLoop() {
	defer c.hub.remove(c)

	idle, _ := c.deadlines()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		extend() //nolint:errcheck // see above
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	_, writeWait := c.deadlines()
	ticker := time.NewTicker(time.Duration(c.hub.cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	send := func(kind int, data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error follows
		return c.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case <-c.done:
			send(websocket.CloseMessage, nil)
			return
		case frame := <-c.out:
			if !send(websocket.TextMessage, frame) {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if !send(websocket.PingMessage, nil) {
				c.shutdown()
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sel WSSubscribePayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &sel) != nil {
			c.reply(msg.ID, WSTypeError, errorBody("invalid "+msg.Type+" payload"))
			return
		}
		channels := make([]string, 0, len(sel.Channels))
		for _, ch := range sel.Channels {
			canonical, ok := canonicalChannel(ch)
			if !ok {
				c.reply(msg.ID, WSTypeError, errorBody("unknown channel: "+ch))
				return
			}
			channels = append(channels, canonical)
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(channels, sel.MinSeverity)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})
		} else {
			c.unsubscribe(channels)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
		}
	default:
		c.reply(msg.ID, WSTypeError, errorBody("unknown message type: "+msg.Type))
	}
}

func (c *wsClient) subscribe(channels []string, minSeverity uint16) {
	c.mu.Lock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	if minSeverity > 0 {
		c.minSeverity = minSeverity
	}
	c.mu.Unlock()
	c.hub.logger.Debug("websocket client subscribed", "channels", channels, "min_severity", minSeverity)
}

func (c *wsClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()
}

func (c *wsClient) reply(id, kind string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(frame)
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}

// canonicalChannel accepts "events" and "events:<node id>", rewriting the
// node id in the form BroadcastEvent uses.
func canonicalChannel(ch string) (string, bool) {
	if ch == ChannelEvents {
		return ch, true
	}
	rest, ok := strings.CutPrefix(ch, ChannelEvents+":")
	if !ok {
		return "", false
	}
	id, err := addrspace.ParseNodeID(rest)
	if err != nil {
		return "", false
	}
	return ChannelEvents + ":" + id.String(), true
}
