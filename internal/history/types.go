// Package history keeps a transcript of prompts and final responses per
// session. It is write-mostly and never feeds back into the wire protocol.
package history

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultRecentLimit applies when RecentBySession is called with limit <= 0.
const DefaultRecentLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// Message is one stored transcript entry.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	TaskID      string    `json:"task_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves transcript messages.
type Store interface {
	SaveMessage(ctx context.Context, msg Message) error
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Close() error
}
