package session

import (
	"time"

	"github.com/ent0n29/agentcore/internal/engine"
	"github.com/ent0n29/agentcore/internal/tasks"
)

// Session is one login-scoped agent conversation. Its engine, execution
// context and task registry belong to it alone and are never reused after
// the session is destroyed.
type Session struct {
	ID        string
	Engine    engine.Engine
	Context   *engine.ExecutionContext
	Tasks     *tasks.Registry
	StartedAt time.Time
}

// Summary is the serializable view of a session.
type Summary struct {
	SessionID   string    `json:"session_id"`
	ActiveTasks int       `json:"active_tasks"`
	StartedAt   time.Time `json:"started_at"`
}

func (s *Session) Summary() Summary {
	return Summary{
		SessionID:   s.ID,
		ActiveTasks: s.Tasks.Len(),
		StartedAt:   s.StartedAt,
	}
}
