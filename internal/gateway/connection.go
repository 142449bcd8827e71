package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/agentcore/internal/protocol"
	"github.com/ent0n29/agentcore/internal/session"
)

// connection is the state of one client. sessionID is only touched by the
// read loop goroutine.
type connection struct {
	id     string
	g      *Gateway
	ws     Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbound   chan frame
	writerDone chan struct{}
	tasks      sync.WaitGroup

	sessionID string
}

func newConnection(parent context.Context, g *Gateway, id string, ws Conn) *connection {
	ctx, cancel := context.WithCancel(parent)
	return &connection{
		id:         id,
		g:          g,
		ws:         ws,
		logger:     g.logger.With("client_id", id),
		ctx:        ctx,
		cancel:     cancel,
		outbound:   make(chan frame, g.cfg.OutboundBuffer),
		writerDone: make(chan struct{}),
	}
}

func (c *connection) readLoop() error {
	cfg := c.g.cfg
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		c.handle(data)
	}
}

// handle dispatches one inbound envelope. A panic is logged and the loop
// keeps going.
func (c *connection) handle(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("envelope handler panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	event, data, err := protocol.Decode(raw)
	if err != nil {
		c.g.metrics.WSMessages.WithLabelValues("inbound", "invalid").Inc()
		c.logger.Warn("invalid envelope", "error", err)
		_ = c.send(protocol.InvalidJSON())
		return
	}
	c.g.metrics.WSMessages.WithLabelValues("inbound", inboundLabel(event)).Inc()
	c.logger.Debug("event received", "event", event, "session_id", c.sessionID)

	switch protocol.EventType(event) {
	case protocol.TypeLogin:
		c.handleLogin()
	case protocol.TypeAgentRequest:
		c.handleAgentRequest(protocol.String(data, "message"))
	case protocol.TypeCancelRequest:
		c.handleCancelRequest(protocol.String(data, "task_id"))
	case protocol.TypeLogout:
		c.handleLogout()
	default:
		_ = c.send(protocol.UnknownEvent(event))
	}
}

// inboundLabel keeps metric cardinality bounded for arbitrary event names.
func inboundLabel(event string) string {
	switch protocol.EventType(event) {
	case protocol.TypeLogin, protocol.TypeAgentRequest, protocol.TypeCancelRequest, protocol.TypeLogout:
		return event
	default:
		return "unknown"
	}
}

func (c *connection) handleLogin() {
	if c.sessionID != "" {
		c.destroySession("relogin")
	}

	sess, err := c.g.sessions.Create(c.ctx)
	if err != nil {
		c.logger.Error("session create failed", "error", err)
		_ = c.send(protocol.Error("Failed to create agent session: " + err.Error()))
		return
	}
	c.sessionID = sess.ID
	c.g.metrics.SessionEvents.WithLabelValues("created").Inc()
	c.g.metrics.ActiveSessions.Set(float64(c.g.sessions.ActiveCount()))
	c.logger.Info("session created", "session_id", sess.ID)

	_ = c.send(protocol.LoginResponse(sess.ID))
}

func (c *connection) handleAgentRequest(prompt string) {
	sess, ok := c.currentSession()
	if !ok {
		_ = c.send(protocol.NotLoggedIn())
		return
	}

	taskID := uuid.NewString()
	taskCtx, cancel := context.WithCancel(c.ctx)
	sess.Tasks.Add(taskID, cancel)

	// The ack is queued before the task goroutine exists, so it precedes every
	// event of this task on the wire.
	if err := c.send(protocol.AgentRequestReceived(taskID)); err != nil {
		cancel()
		sess.Tasks.Remove(taskID)
		return
	}

	c.tasks.Add(1)
	go c.runTask(taskCtx, cancel, sess, taskID, prompt)
}

func (c *connection) handleCancelRequest(taskID string) {
	sess, ok := c.currentSession()
	if !ok {
		_ = c.send(protocol.NotLoggedIn())
		return
	}
	if !sess.Tasks.Cancel(taskID) {
		_ = c.send(protocol.TaskNotFound(taskID))
		return
	}
	c.logger.Info("task cancel requested", "session_id", sess.ID, "task_id", taskID)
	_ = c.send(protocol.RequestCancelled(taskID))
}

func (c *connection) handleLogout() {
	if _, ok := c.currentSession(); !ok {
		_ = c.send(protocol.NotLoggedIn())
		return
	}
	c.destroySession("logout")
	_ = c.send(protocol.LogoutResponse())
}

// currentSession resolves the attached session, dropping a stale id whose
// session was destroyed elsewhere.
func (c *connection) currentSession() (*session.Session, bool) {
	if c.sessionID == "" {
		return nil, false
	}
	sess, err := c.g.sessions.Get(c.sessionID)
	if err != nil {
		c.sessionID = ""
		return nil, false
	}
	return sess, true
}

func (c *connection) destroySession(reason string) {
	id := c.sessionID
	c.sessionID = ""
	if id == "" {
		return
	}
	if c.g.sessions.Destroy(id) {
		c.logger.Debug("session detached", "session_id", id, "reason", reason)
	}
}

func (c *connection) teardown() {
	count := c.g.clients.remove(c.id)
	c.g.metrics.ConnectedClients.Set(float64(count))
	c.destroySession("disconnect")

	c.cancel()
	c.tasks.Wait()
	<-c.writerDone
	c.logger.Info("client disconnected", "connected_clients", count)
}
