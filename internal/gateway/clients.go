package gateway

import (
	"context"
	"sync"
)

// clientSet tracks open connections by id with the handle that disconnects
// them.
type clientSet struct {
	mu      sync.Mutex
	clients map[string]context.CancelFunc
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[string]context.CancelFunc)}
}

func (s *clientSet) add(id string, cancel context.CancelFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = cancel
	return len(s.clients)
}

func (s *clientSet) remove(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
	return len(s.clients)
}

func (s *clientSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *clientSet) cancelAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.clients))
	for _, cancel := range s.clients {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
