package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMemorySessions     = 256
	DefaultMessagesPerSession = 200
)

// InMemoryStore keeps transcripts in process memory for local/dev use. It
// holds at most maxSessions transcripts, evicting the least recently written,
// and at most perSession messages for each.
type InMemoryStore struct {
	mu         sync.Mutex
	sessions   *lru.Cache[string, []Message]
	perSession int
}

func NewInMemoryStore() *InMemoryStore {
	s, err := NewBoundedInMemoryStore(DefaultMemorySessions, DefaultMessagesPerSession)
	if err != nil {
		panic(err)
	}
	return s
}

func NewBoundedInMemoryStore(maxSessions, perSession int) (*InMemoryStore, error) {
	if perSession <= 0 {
		return nil, fmt.Errorf("messages per session must be positive, got %d", perSession)
	}
	cache, err := lru.New[string, []Message](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("create transcript cache: %w", err)
	}
	return &InMemoryStore{sessions: cache, perSession: perSession}, nil
}

func (s *InMemoryStore) SaveMessage(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arr, _ := s.sessions.Get(msg.SessionID)
	arr = append(arr, msg)
	if over := len(arr) - s.perSession; over > 0 {
		arr = append([]Message(nil), arr[over:]...)
	}
	s.sessions.Add(msg.SessionID, arr)
	return nil
}

// RecentBySession returns up to limit messages, oldest first.
func (s *InMemoryStore) RecentBySession(_ context.Context, sessionID string, limit int) ([]Message, error) {
	limit = normalizeLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	arr, _ := s.sessions.Peek(sessionID)
	if len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

// Sessions reports how many transcripts are held.
func (s *InMemoryStore) Sessions() int {
	return s.sessions.Len()
}

func (s *InMemoryStore) Close() error { return nil }
