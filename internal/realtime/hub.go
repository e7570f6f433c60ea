// Package realtime streams event log activity to WebSocket clients.
//
// Clients receive every message by default and may narrow the stream by
// sending a subscription:
//
//	{"all": false, "kinds": ["phishing_detected"], "domains": ["example.com"]}
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbd888/pagewatch/internal/metrics"
)

const (
	// MaxClients caps concurrent stream connections.
	MaxClients = 1000

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 64 * 1024
	clientBuffer   = 256
	publishBuffer  = 256
)

var expectedCloses = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Kind names a stream message.
type Kind string

const (
	KindEventStored      Kind = "event_stored"
	KindDomainSeen       Kind = "domain_seen"
	KindPhishingDetected Kind = "phishing_detected"
)

// Message is one streamed item. Domain is the hostname the item concerns.
type Message struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain,omitempty"`
	Data      any       `json:"data"`
}

// Subscription narrows what a client receives. All wins over the filters;
// with no filters set everything is delivered.
type Subscription struct {
	All     bool     `json:"all"`
	Kinds   []Kind   `json:"kinds"`
	Domains []string `json:"domains"`
}

// matches reports whether msg passes the subscription. Domain filters accept
// the hostname itself and any subdomain of it.
func (s Subscription) matches(msg *Message) bool {
	if s.All {
		return true
	}
	if len(s.Kinds) > 0 && !slices.Contains(s.Kinds, msg.Kind) {
		return false
	}
	if len(s.Domains) == 0 {
		return true
	}
	if msg.Domain == "" {
		return false
	}
	return slices.ContainsFunc(s.Domains, func(d string) bool {
		d = strings.ToLower(strings.TrimSpace(d))
		return msg.Domain == d || strings.HasSuffix(msg.Domain, "."+d)
	})
}

// Client is one stream connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

func (c *Client) wants(msg *Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.matches(msg)
}

func (c *Client) subscribe(sub Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Connected    int   `json:"connected_clients"`
	TotalClients int64 `json:"total_clients"`
	PeakClients  int64 `json:"peak_clients"`
	Published    int64 `json:"published_messages"`
	Dropped      int64 `json:"dropped_messages"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithOriginCheck sets the predicate applied to the Origin header of browser
// upgrade requests. Requests without an Origin are always accepted.
func WithOriginCheck(allowed func(origin string) bool) Option {
	return func(h *Hub) { h.originAllowed = allowed }
}

// WithMaxClients overrides MaxClients.
func WithMaxClients(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxClients = n
		}
	}
}

// Hub fans published messages out to connected clients. Membership changes
// and fan-out happen on the Run goroutine.
type Hub struct {
	logger        *slog.Logger
	upgrader      websocket.Upgrader
	originAllowed func(origin string) bool
	maxClients    int

	mu      sync.RWMutex
	clients map[*Client]struct{}

	publish    chan *Message
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	published    atomic.Int64
	dropped      atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub returns a hub; call Run to start delivering.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger:     logger,
		maxClients: MaxClients,
		clients:    make(map[*Client]struct{}),
		publish:    make(chan *Message, publishBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts non-browser clients, origins approved by the configured
// predicate, and same-host origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.originAllowed != nil && h.originAllowed(origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Run delivers messages until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	h.logger.Info("realtime hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("realtime hub stopped")
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.publish:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.totalClients.Add(1)
	if int64(n) > h.peakClients.Load() {
		h.peakClients.Store(int64(n))
	}
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("stream client connected", "connected", n)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("stream client disconnected", "connected", n)
}

// fanOut queues msg for every interested client. A client whose buffer is
// full is disconnected.
func (h *Hub) fanOut(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("stream message not serializable", "kind", msg.Kind, "error", err)
		return
	}

	var lagging []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range lagging {
		h.logger.Warn("dropping lagging stream client")
		h.remove(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
}

// Publish queues a message for all matching clients. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Publish(kind Kind, domain string, data any) {
	msg := &Message{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Domain:    domain,
		Data:      data,
	}
	select {
	case h.publish <- msg:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		h.logger.Warn("stream queue full, message dropped", "kind", kind)
	}
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		Connected:    n,
		TotalClients: h.totalClients.Load(),
		PeakClients:  h.peakClients.Load(),
		Published:    h.published.Load(),
		Dropped:      h.dropped.Load(),
	}
}

// HandleWebSocket upgrades the request and registers the connection. It
// answers 503 once the hub has stopped or is full.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.stopped:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.Stats().Connected >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBuffer),
		sub:  Subscription{All: true},
	}
	h.register <- c

	go c.writeLoop()
	go c.readLoop()
}

// readLoop applies subscription updates until the connection closes.
// Frames that are not a valid subscription are ignored.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, expectedCloses...) {
				c.hub.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		var sub Subscription
		if json.Unmarshal(frame, &sub) == nil {
			c.subscribe(sub)
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Warn("stream write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("stream ping failed", "error", err)
				return
			}
		}
	}
}
