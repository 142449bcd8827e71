package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/agentcore/internal/protocol"
)

type frame struct {
	event string
	data  []byte
}

// send encodes env and queues it for the writer. It blocks while the queue is
// full and fails with ErrConnectionClosed once the connection is closing.
// Encoding failures are logged and returned.
func (c *connection) send(env protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		c.logger.Error("encode envelope failed", "event", env.Event, "error", err)
		return err
	}
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.outbound <- frame{event: string(env.Event), data: raw}:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// writeLoop is the only goroutine that writes data frames to the socket.
func (c *connection) writeLoop() {
	defer close(c.writerDone)

	cfg := c.g.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second),
			)
			_ = c.ws.Close()
			return
		case f := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, f.data); err != nil {
				c.fail("write", err)
				return
			}
			c.g.metrics.WSMessages.WithLabelValues("outbound", f.event).Inc()
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				c.fail("ping", err)
				return
			}
		}
	}
}

// fail aborts the connection after a write error. Closing the socket unblocks
// the read loop, which then tears everything down.
func (c *connection) fail(op string, err error) {
	c.g.metrics.WSWriteErrors.Inc()
	c.logger.Warn("websocket write failed", "op", op, "error", err)
	c.cancel()
	_ = c.ws.Close()
}
