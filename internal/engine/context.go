package engine

import (
	"sync"
	"time"
)

const defaultMaxTurns = 64

// Turn is one remembered exchange entry.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"-"`
}

// ExecutionContext is the per-session conversational memory threaded through
// every run of that session. It is safe for concurrent use since two tasks of
// one session may run at once.
type ExecutionContext struct {
	sessionID string
	maxTurns  int

	mu    sync.RWMutex
	turns []Turn
}

func NewExecutionContext(sessionID string) *ExecutionContext {
	return &ExecutionContext{sessionID: sessionID, maxTurns: defaultMaxTurns}
}

func (c *ExecutionContext) SessionID() string {
	return c.sessionID
}

// Append records a turn, keeping only the most recent turns.
func (c *ExecutionContext) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Content: content, At: time.Now().UTC()})
	if over := len(c.turns) - c.maxTurns; over > 0 {
		c.turns = append([]Turn(nil), c.turns[over:]...)
	}
}

// Turns returns a copy of the remembered turns, oldest first.
func (c *ExecutionContext) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// LastContent returns the content of the most recent turn with role, if any.
func (c *ExecutionContext) LastContent(role string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == role {
			return c.turns[i].Content, true
		}
	}
	return "", false
}
