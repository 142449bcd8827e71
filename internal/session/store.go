package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/agentcore/internal/engine"
	"github.com/ent0n29/agentcore/internal/tasks"
)

var ErrNotFound = errors.New("session not found")

// EngineFactory builds the engine owned by a new session.
type EngineFactory interface {
	NewEngine(ctx context.Context, sessionID string) (engine.Engine, error)
}

// Store is the process-wide table of live sessions. It is constructed once at
// startup and handed to every connection handler.
type Store struct {
	factory EngineFactory

	mu        sync.RWMutex
	sessions  map[string]*Session
	onDestroy func(*Session, int)
}

func NewStore(factory EngineFactory) *Store {
	return &Store{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// SetDestroyHook registers fn to run after a session is destroyed, with the
// number of tasks that were cancelled.
func (s *Store) SetDestroyHook(fn func(sess *Session, cancelled int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDestroy = fn
}

// Create builds a session with a fresh engine, execution context and empty
// task registry.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	eng, err := s.factory.NewEngine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	sess := &Session{
		ID:        id,
		Engine:    eng,
		Context:   engine.NewExecutionContext(id),
		Tasks:     tasks.NewRegistry(),
		StartedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Store) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Destroy cancels every task of the session and then removes it. It reports
// false when the session is unknown.
func (s *Store) Destroy(sessionID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	cancelled := sess.Tasks.CancelAll()
	delete(s.sessions, sessionID)
	hook := s.onDestroy
	s.mu.Unlock()

	if hook != nil {
		hook(sess, cancelled)
	}
	return true
}

// DestroyAll tears down every live session and returns how many there were.
func (s *Store) DestroyAll() int {
	ids := s.IDs()
	n := 0
	for _, id := range ids {
		if s.Destroy(id) {
			n++
		}
	}
	return n
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns live session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Summaries returns a view of every live session, ordered by id.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
