package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSaveTimeout = 5 * time.Second

// Recorder saves transcript entries in the background. Failures are logged
// and never reach the caller.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder returns nil when store is nil; a nil Recorder drops everything.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, timeout: defaultSaveTimeout}
}

// Record redacts content and saves it asynchronously.
func (r *Recorder) Record(sessionID, taskID, role, content string) {
	if r == nil {
		return
	}
	redacted, changed := RedactPII(content)
	msg := Message{
		SessionID:   sessionID,
		TaskID:      taskID,
		Role:        role,
		Content:     redacted,
		PIIRedacted: changed,
		CreatedAt:   time.Now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.SaveMessage(ctx, msg); err != nil {
			r.logger.Warn("history save failed",
				"session_id", sessionID,
				"task_id", taskID,
				"role", role,
				"error", err,
			)
		}
	}()
}

// Wait blocks until pending saves have finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
