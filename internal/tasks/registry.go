package tasks

import (
	"context"
	"sync"
)

// Registry tracks the in-flight tasks of one session, keyed by task id.
//
// The owning connection loop adds and cancels entries while each task's own
// goroutine removes itself on exit, so every operation takes the mutex.
// CancelAll clears the map eagerly; a later Remove from the unwinding task
// is a no-op.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[string]context.CancelFunc)}
}

// Add registers the cancel handle for taskID, replacing any previous handle.
func (r *Registry) Add(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[taskID] = cancel
}

// Cancel invokes and removes the handle for taskID. It reports false when the
// task is unknown or has already finished.
func (r *Registry) Cancel(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	if ok {
		delete(r.cancels, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// CancelAll signals every registered task and empties the registry without
// waiting for the tasks to unwind. It returns how many tasks were signalled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	return len(cancels)
}

// Remove drops taskID without cancelling it. It reports whether an entry was
// present.
func (r *Registry) Remove(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cancels[taskID]; !ok {
		return false
	}
	delete(r.cancels, taskID)
	return true
}

func (r *Registry) HasActive() bool {
	return r.Len() > 0
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// IDs returns the registered task ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cancels))
	for id := range r.cancels {
		out = append(out, id)
	}
	return out
}
