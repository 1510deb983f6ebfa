package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"smedia/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

// Errors returned by Register when a connection limit is hit.
var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// FeedHub maps a viewer's email to the websocket clients that follow the live feed.
type FeedHub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewFeedHub creates an empty hub.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		conns: make(map[string]map[*Client]struct{}),
		log:   observability.NewWSLogger("feed"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *FeedHub) Name() string { return "feed" }

// Register adds a connection for email. It fails when the hub is shut down or a
// connection limit is exceeded.
func (h *FeedHub) Register(email string, conn *websocket.Conn) (*Client, error) {
	email = strings.ToLower(email)

	h.mu.Lock()
	if h.closed || h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}
	m, ok := h.conns[email]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[email] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, email)
	m[client] = struct{}{}
	h.totalConns++
	total := h.totalConns
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), email, total)
	return client, nil
}

// UnregisterClient removes a client. Calling it twice is harmless.
func (h *FeedHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.Email]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
			client.closeSend(nil)
		}
		if len(m) == 0 {
			delete(h.conns, client.Email)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
		h.log.LogDisconnect(context.Background(), client.Email, "unregistered")
	}
}

// Count returns the number of live connections.
func (h *FeedHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Broadcast sends message to every connection held by email.
func (h *FeedHub) Broadcast(email, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[strings.ToLower(email)]
	if !ok {
		return
	}
	data := []byte(message)
	for c := range clients {
		c.TrySend(data)
	}
}

// BroadcastAll sends message to every connected client.
func (h *FeedHub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// StartWiring subscribes the hub to the feed channels so events published by any
// instance reach local clients.
func (h *FeedHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == BroadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		email, ok := emailFromChannel(channel)
		if !ok {
			observability.GlobalLogger.Warn("invalid feed channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(email, payload)
	})
}

// Shutdown refuses new connections and asks every client's WritePump to send a
// going-away close frame and hang up.
func (h *FeedHub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	frame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, clients := range h.conns {
		for client := range clients {
			client.closeSend(frame)
		}
	}
	observability.WebSocketConnectionsTotal.Sub(float64(h.totalConns))
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	h.log.LogLifecycle(ctx, "shutdown", nil)
	return nil
}
