// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/metrics"
	"metromap/internal/service/live"
)

// Subscriber delivers raw messages published on a subject
type Subscriber interface {
	Subscribe(subject string, fn func(data []byte)) (unsubscribe func(), err error)
}

// NATSSubscriber adapts a NATS connection to Subscriber
type NATSSubscriber struct {
	Conn *nats.Conn
}

// Subscribe implements Subscriber
func (s NATSSubscriber) Subscribe(subject string, fn func(data []byte)) (func(), error) {
	sub, err := s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { sub.Unsubscribe() }, nil
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Queued updates per client before new ones are dropped
	SendBuffer int
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}
}

// LayerStream forwards live layer updates to WebSocket clients
type LayerStream struct {
	cache         LayerCache
	subscriber    Subscriber
	subjectPrefix string
	config        WebSocketConfig
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// NewLayerStream creates the live stream handler. A nil subscriber makes
// every connection attempt answer 503.
func NewLayerStream(c LayerCache, sub Subscriber, subjectPrefix string, allowedOrigins []string, l *slog.Logger) *LayerStream {
	return &LayerStream{
		cache:         c,
		subscriber:    sub,
		subjectPrefix: subjectPrefix,
		config:        DefaultWebSocketConfig(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.OrDiscard(l),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// streamClient is one connected WebSocket peer
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	key    layer.Key
	config WebSocketConfig
	logger *slog.Logger

	unsubscribe func()
}

// ServeHTTP upgrades the connection, sends the current envelope and then
// relays every update published for the layer.
func (s *LayerStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := layer.ParseKey(chi.URLParam(r, "key"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "Unknown layer")
		return
	}
	if _, registered := s.cache.TTL(key); !registered {
		respondWithError(w, http.StatusNotFound, "Layer not enabled")
		return
	}
	if s.subscriber == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Live updates are not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket_upgrade_failed", "layer", key, "error", err)
		return
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, s.config.SendBuffer),
		done:   make(chan struct{}),
		key:    key,
		config: s.config,
		logger: s.logger,
	}

	unsubscribe, err := s.subscriber.Subscribe(live.Subject(s.subjectPrefix, key), client.enqueue)
	if err != nil {
		s.logger.Error("websocket_subscribe_failed", "layer", key, "error", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		conn.Close()
		return
	}
	client.unsubscribe = unsubscribe

	metrics.WebSocketClients.Inc()
	s.logger.Info("websocket_connected", "layer", key, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()

	// The snapshot is read after subscribing so no update is missed between the two.
	if res, err := s.cache.Get(r.Context(), key); err == nil {
		snapshot, err := json.Marshal(live.Update{
			ID:          uuid.NewString(),
			Layer:       key,
			Status:      res.Status.String(),
			Envelope:    res.Envelope,
			PublishedAt: time.Now().UTC(),
		})
		if err == nil {
			client.enqueue(snapshot)
		}
	}
}

// enqueue hands a message to the write pump, dropping it when the client is slow
func (c *streamClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("websocket_update_dropped", "layer", c.key)
	}
}

// readPump discards client frames and detects disconnects
func (c *streamClient) readPump() {
	defer c.closeConnection()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket_read_failed", "layer", c.key, "error", err)
			}
			return
		}
	}
}

// writePump sends queued updates and keeps the connection alive with pings
func (c *streamClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection unsubscribes and closes the socket exactly once
func (c *streamClient) closeConnection() {
	c.once.Do(func() {
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.conn.Close()
		metrics.WebSocketClients.Dec()
		c.logger.Info("websocket_closed", "layer", c.key)
	})
}
