// Package gateway runs the per-connection protocol loop. Each connection owns
// at most one session at a time, every session owns its running tasks, and all
// outbound envelopes of a connection go through a single writer goroutine.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/agentcore/internal/history"
	"github.com/ent0n29/agentcore/internal/observability"
	"github.com/ent0n29/agentcore/internal/session"
)

// ErrConnectionClosed is returned when sending on a connection that is
// shutting down.
var ErrConnectionClosed = errors.New("connection closed")

// Conn is the subset of *websocket.Conn the gateway uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	OutboundBuffer int
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= c.PingInterval {
		c.ReadTimeout = 3 * c.PingInterval
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 256
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 2 << 20
	}
	return c
}

// Gateway owns the connected-client set and drives connections against a
// shared session store.
type Gateway struct {
	cfg      Config
	sessions *session.Store
	metrics  *observability.Metrics
	history  *history.Recorder
	logger   *slog.Logger

	clients *clientSet
	conns   sync.WaitGroup
}

func New(
	cfg Config,
	sessions *session.Store,
	metrics *observability.Metrics,
	recorder *history.Recorder,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		metrics:  metrics,
		history:  recorder,
		logger:   logger,
		clients:  newClientSet(),
	}
	sessions.SetDestroyHook(func(sess *session.Session, cancelled int) {
		g.metrics.SessionEvents.WithLabelValues("destroyed").Inc()
		g.metrics.ActiveSessions.Set(float64(g.sessions.ActiveCount()))
		g.logger.Info("session destroyed",
			"session_id", sess.ID,
			"cancelled_tasks", cancelled,
		)
	})
	return g
}

// ServeConn runs the protocol loop for ws until the peer goes away, the read
// fails, or ctx is cancelled. Every exit path destroys the connection's
// session and waits for its tasks and writer to stop.
func (g *Gateway) ServeConn(ctx context.Context, ws Conn) error {
	g.conns.Add(1)
	defer g.conns.Done()

	c := newConnection(ctx, g, uuid.NewString(), ws)
	count := g.clients.add(c.id, c.cancel)
	g.metrics.ConnectedClients.Set(float64(count))
	c.logger.Info("client connected", "connected_clients", count)

	go c.writeLoop()
	defer c.teardown()

	return c.readLoop()
}

// ConnectedClients reports the number of open connections.
func (g *Gateway) ConnectedClients() int {
	return g.clients.len()
}

// ActiveSessions reports the number of live sessions.
func (g *Gateway) ActiveSessions() int {
	return g.sessions.ActiveCount()
}

// Sessions lists live sessions with their running task counts.
func (g *Gateway) Sessions() []session.Summary {
	return g.sessions.Summaries()
}

// Close disconnects every client, destroys every remaining session, and waits
// for connection handlers to finish or ctx to expire.
func (g *Gateway) Close(ctx context.Context) error {
	g.clients.cancelAll()
	if n := g.sessions.DestroyAll(); n > 0 {
		g.logger.Info("destroyed sessions on shutdown", "count", n)
	}

	done := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
