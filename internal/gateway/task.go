package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ent0n29/agentcore/internal/engine"
	"github.com/ent0n29/agentcore/internal/history"
	"github.com/ent0n29/agentcore/internal/protocol"
	"github.com/ent0n29/agentcore/internal/session"
)

const (
	outcomeSuccess   = "success"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
	outcomeExpired   = "session_expired"
)

// runTask processes one agent_request. Whatever happens, the deferred block
// cancels the task context and removes the task from its registry.
func (c *connection) runTask(
	ctx context.Context,
	cancel context.CancelFunc,
	sess *session.Session,
	taskID string,
	prompt string,
) {
	started := time.Now()
	logger := c.logger.With("session_id", sess.ID, "task_id", taskID)
	outcome := outcomeFailed
	var firstEvent atomic.Int64
	defer func() {
		cancel()
		sess.Tasks.Remove(taskID)
		c.g.metrics.ObserveTask(outcome, time.Since(started), time.Duration(firstEvent.Load()))
		logger.Info("task finished", "outcome", outcome, "duration_ms", time.Since(started).Milliseconds())
		c.tasks.Done()
	}()

	if _, err := c.g.sessions.Get(sess.ID); err != nil {
		outcome = outcomeExpired
		_ = c.send(protocol.TaskError(taskID, protocol.MessageSessionExpired))
		return
	}
	logger.Info("task started")
	c.g.history.Record(sess.ID, taskID, history.RoleUser, prompt)

	result, err := c.execute(ctx, sess, prompt, func(ev engine.ProgressEvent) error {
		firstEvent.CompareAndSwap(0, int64(time.Since(started)))
		return c.forward(taskID, ev)
	})

	switch {
	case err == nil:
		outcome = outcomeSuccess
		response := result.Text()
		_ = c.send(protocol.AgentResponse(taskID, response))
		c.g.history.Record(sess.ID, taskID, history.RoleAssistant, response)
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		outcome = outcomeCancelled
		_ = c.send(protocol.TaskCancelled(taskID))
	default:
		logger.Error("task failed", "error", err)
		_ = c.send(protocol.TaskError(taskID, "Error processing request: "+err.Error()))
	}
}

// execute runs the session engine, converting a panic into an error.
func (c *connection) execute(
	ctx context.Context,
	sess *session.Session,
	prompt string,
	onEvent engine.EventHandler,
) (result engine.FinalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return sess.Engine.Run(ctx, prompt, sess.Context, onEvent)
}

// forward translates one progress event into at most one outbound envelope.
// Only a closed connection aborts the run; an event that fails to encode is
// dropped.
func (c *connection) forward(taskID string, ev engine.ProgressEvent) error {
	var env protocol.Envelope
	switch e := ev.(type) {
	case engine.ToolCall:
		env = protocol.ToolCall(taskID, e.ToolName, e.ToolKwargs)
	case engine.ToolCallResult:
		env = protocol.ToolResult(taskID, e.ToolName, engine.RenderText(e.ToolOutput))
	case engine.AgentOutput:
		env = protocol.AgentOutput(taskID, e.Output)
	default:
		return nil
	}
	if err := c.send(env); errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return nil
}
