package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"segloader/logging"
)

type MessageType string

const (
	CollectionBuilt MessageType = "collection_built"
	MetricsSnapshot MessageType = "metrics_snapshot"
	Pong            MessageType = "pong"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64

	// DefaultPongWait is how long a client may stay silent. Pings go out
	// every half of it.
	DefaultPongWait = 60 * time.Second
)

// Message is the envelope of every frame sent to stream clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        uint64          `json:"id"`
}

// ClientMessage is sent by clients: subscribe, unsubscribe or ping.
type ClientMessage struct {
	Type  string      `json:"type"`
	Topic MessageType `json:"topic"`
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	id       uint64
	pongWait time.Duration

	mu            sync.RWMutex
	subscriptions map[MessageType]bool
}

// wants reports whether the client receives t. A client without
// subscriptions receives everything.
func (c *client) wants(t MessageType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

// reply is a frame for a single client. The hub owns every send channel,
// so direct replies go through it as well.
type reply struct {
	c     *client
	frame []byte
}

type HubStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	StartTime        time.Time `json:"start_time"`
}

// Hub fans loader events and metric snapshots out to websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	reply      chan reply
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	pongWait   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	nextID  atomic.Uint64
	sent    atomic.Int64
	dropped atomic.Int64
	count   atomic.Int64
	start   time.Time
}

func NewHub(logger *zap.Logger) *Hub {
	logger = logging.OrNop(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		reply:      make(chan reply),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   logger,
		pongWait: DefaultPongWait,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		start:    time.Now(),
	}
}

// Run serves registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("stream client connected", zap.Uint64("client", c.id), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("stream client disconnected", zap.Uint64("client", c.id), zap.Int("total", len(h.clients)))

		case r := <-h.reply:
			if h.clients[r.c] {
				select {
				case r.c.send <- r.frame:
					h.sent.Add(1)
				default:
				}
			}

		case msg := <-h.broadcast:
			frame, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("encode stream message", zap.Error(err))
				continue
			}
			for c := range h.clients {
				if !c.wants(msg.Type) {
					continue
				}
				select {
				case c.send <- frame:
					h.sent.Add(1)
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, c)
					h.dropped.Add(1)
				}
			}
			h.count.Store(int64(len(h.clients)))

		case <-h.ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.count.Store(0)
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// Publish queues v for every client subscribed to t. Messages are dropped
// when the queue is full.
func (h *Hub) Publish(t MessageType, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	msg := Message{Type: t, Timestamp: time.Now(), Data: data, ID: h.nextID.Add(1)}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		h.dropped.Add(1)
		h.logger.Warn("stream queue full, dropping message", zap.String("type", string(t)))
		return nil
	}
}

// PublishSnapshots sends a summary of every metric in mc each interval
// until ctx is done.
func (h *Hub) PublishSnapshots(ctx context.Context, mc *MetricsCollector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			snapshot := make(map[string]map[string]interface{})
			for name := range mc.GetAllMetrics() {
				if summary, err := mc.GetMetricSummary(name); err == nil {
					snapshot[name] = summary
				}
			}
			if err := h.Publish(MetricsSnapshot, snapshot); err != nil {
				h.logger.Error("publish metrics snapshot", zap.Error(err))
			}
		}
	}
}

func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		ConnectedClients: h.count.Load(),
		MessagesSent:     h.sent.Load(),
		MessagesDropped:  h.dropped.Load(),
		StartTime:        h.start,
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            h.nextID.Add(1),
		pongWait:      h.pongWait,
		subscriptions: make(map[MessageType]bool),
	}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pongWait / 2)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Uint64("client", c.id), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("malformed client message", zap.Uint64("client", c.id), zap.Error(err))
			continue
		}
		c.handle(h, msg)
	}
}

func (c *client) handle(h *Hub, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.subscriptions[msg.Topic] = true
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subscriptions, msg.Topic)
		c.mu.Unlock()
	case "ping":
		frame, _ := json.Marshal(Message{Type: Pong, Timestamp: time.Now(), ID: h.nextID.Add(1)})
		select {
		case h.reply <- reply{c: c, frame: frame}:
		case <-h.ctx.Done():
		}
	}
}
