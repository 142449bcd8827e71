package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ent0n29/agentcore/internal/engine"
)

func newTestStore() *Store {
	return NewStore(engine.FactoryFunc(func(_ context.Context, _ string) (engine.Engine, error) {
		return engine.NewMockEngine(0), nil
	}))
}

func TestStoreCreateGetDestroy(t *testing.T) {
	s := newTestStore()
	sess, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if sess.Context.SessionID() != sess.ID {
		t.Fatalf("context session = %q, want %q", sess.Context.SessionID(), sess.ID)
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != sess {
		t.Fatalf("Get() returned a different session")
	}

	if !s.Destroy(sess.ID) {
		t.Fatalf("Destroy() = false, want true")
	}
	if s.Destroy(sess.ID) {
		t.Fatalf("second Destroy() = true, want false")
	}
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after destroy error = %v, want ErrNotFound", err)
	}
}

func TestStoreSessionsDoNotShareResources(t *testing.T) {
	s := newTestStore()
	a, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("session ids collide: %q", a.ID)
	}
	if a.Tasks == b.Tasks || a.Context == b.Context || a.Engine == b.Engine {
		t.Fatalf("sessions share registry, context or engine")
	}
	if s.ActiveCount() != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", s.ActiveCount())
	}
}

func TestStoreDestroyCancelsTasksFirst(t *testing.T) {
	s := newTestStore()
	sess, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	sess.Tasks.Add("t1", cancel1)
	sess.Tasks.Add("t2", cancel2)

	var hookCancelled int
	s.SetDestroyHook(func(got *Session, cancelled int) {
		hookCancelled = cancelled
		if got.Tasks.HasActive() {
			t.Errorf("registry still has tasks when hook runs")
		}
	})

	s.Destroy(sess.ID)
	if ctx1.Err() == nil || ctx2.Err() == nil {
		t.Fatalf("tasks were not cancelled on destroy")
	}
	if hookCancelled != 2 {
		t.Fatalf("hook cancelled = %d, want 2", hookCancelled)
	}
	// Late self-removal from an unwinding task is a no-op.
	if sess.Tasks.Remove("t1") {
		t.Fatalf("Remove() after destroy = true, want false")
	}
}

func TestStoreCreateEngineFailure(t *testing.T) {
	boom := errors.New("backend down")
	s := NewStore(engine.FactoryFunc(func(context.Context, string) (engine.Engine, error) {
		return nil, boom
	}))
	if _, err := s.Create(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", s.ActiveCount())
	}
}

func TestStoreDestroyAllConcurrent(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 20; i++ {
		if _, err := s.Create(context.Background()); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var wg sync.WaitGroup
	for _, id := range s.IDs() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Destroy(id)
		}(id)
	}
	n := s.DestroyAll()
	wg.Wait()

	if s.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", s.ActiveCount())
	}
	if n > 20 {
		t.Fatalf("DestroyAll() = %d, want <= 20", n)
	}
}

func TestStoreSummariesReportActiveTasks(t *testing.T) {
	s := newTestStore()
	a, _ := s.Create(context.Background())
	b, _ := s.Create(context.Background())
	a.Tasks.Add("t1", func() {})
	a.Tasks.Add("t2", func() {})

	got := s.Summaries()
	if len(got) != 2 {
		t.Fatalf("len(Summaries()) = %d, want 2", len(got))
	}
	if got[0].SessionID > got[1].SessionID {
		t.Fatalf("Summaries() not ordered by id: %+v", got)
	}
	counts := map[string]int{}
	for _, sum := range got {
		counts[sum.SessionID] = sum.ActiveTasks
		if sum.StartedAt.IsZero() {
			t.Fatalf("summary missing start time: %+v", sum)
		}
	}
	if counts[a.ID] != 2 || counts[b.ID] != 0 {
		t.Fatalf("active task counts = %v", counts)
	}

	s.Destroy(a.ID)
	if got := s.Summaries(); len(got) != 1 || got[0].SessionID != b.ID {
		t.Fatalf("Summaries() after destroy = %+v", got)
	}
}
