package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}

	plain, changed := RedactPII("nothing to hide")
	if changed || plain != "nothing to hide" {
		t.Fatalf("RedactPII() = %q, %v; want unchanged", plain, changed)
	}
}

func TestInMemoryStoreRecentBySession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c"} {
		if err := s.SaveMessage(ctx, Message{SessionID: "s1", Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}
	if err := s.SaveMessage(ctx, Message{SessionID: "s2", Role: RoleUser, Content: "other"}); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	got, err := s.RecentBySession(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentBySession() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("RecentBySession() = %+v, want [b c]", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("message defaults not filled: %+v", got[0])
	}

	all, _ := s.RecentBySession(ctx, "s1", 0)
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	none, _ := s.RecentBySession(ctx, "missing", 5)
	if len(none) != 0 {
		t.Fatalf("len(none) = %d, want 0", len(none))
	}
}

func TestInMemoryStoreCapsMessagesPerSession(t *testing.T) {
	s, err := NewBoundedInMemoryStore(4, 3)
	if err != nil {
		t.Fatalf("NewBoundedInMemoryStore() error = %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = s.SaveMessage(ctx, Message{SessionID: "s1", Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	got, _ := s.RecentBySession(ctx, "s1", 0)
	if len(got) != 3 || got[0].Content != "m7" || got[2].Content != "m9" {
		t.Fatalf("RecentBySession() = %+v, want [m7 m8 m9]", got)
	}
}

func TestInMemoryStoreEvictsLeastRecentSession(t *testing.T) {
	s, err := NewBoundedInMemoryStore(2, 10)
	if err != nil {
		t.Fatalf("NewBoundedInMemoryStore() error = %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("s%d", i)
		_ = s.SaveMessage(ctx, Message{SessionID: id, Role: RoleUser, Content: "hi"})
		_ = s.SaveMessage(ctx, Message{SessionID: id, Role: RoleAssistant, Content: "hello"})
	}

	if n := s.Sessions(); n != 2 {
		t.Fatalf("Sessions() = %d, want 2", n)
	}
	if old, _ := s.RecentBySession(ctx, "s0", 0); len(old) != 0 {
		t.Fatalf("evicted transcript still readable: %+v", old)
	}
	if last, _ := s.RecentBySession(ctx, "s49", 0); len(last) != 2 {
		t.Fatalf("len(last) = %d, want 2", len(last))
	}
}

func TestRecentBySessionDefaultLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < DefaultRecentLimit+5; i++ {
		_ = s.SaveMessage(ctx, Message{SessionID: "s1", Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	got, _ := s.RecentBySession(ctx, "s1", -1)
	if len(got) != DefaultRecentLimit {
		t.Fatalf("len(got) = %d, want %d", len(got), DefaultRecentLimit)
	}
	if got[0].Content != "m5" {
		t.Fatalf("got[0] = %q, want m5", got[0].Content)
	}
}

func TestNewBoundedInMemoryStoreRejectsBadSizes(t *testing.T) {
	if _, err := NewBoundedInMemoryStore(0, 10); err == nil {
		t.Fatalf("NewBoundedInMemoryStore(0, 10) error = nil")
	}
	if _, err := NewBoundedInMemoryStore(10, 0); err == nil {
		t.Fatalf("NewBoundedInMemoryStore(10, 0) error = nil")
	}
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	s, mode, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if mode != ModeMemory {
		t.Fatalf("mode = %q, want %q", mode, ModeMemory)
	}
}

func TestRecorderRedactsBeforeSaving(t *testing.T) {
	s := NewInMemoryStore()
	r := NewRecorder(s, nil)
	r.Record("s1", "t1", RoleUser, "reach me at sam@example.com")
	r.Wait()

	got, _ := s.RecentBySession(context.Background(), "s1", 0)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if !got[0].PIIRedacted || strings.Contains(got[0].Content, "sam@example.com") {
		t.Fatalf("content not redacted: %+v", got[0])
	}
	if got[0].TaskID != "t1" || got[0].Role != RoleUser {
		t.Fatalf("unexpected message: %+v", got[0])
	}
}

type failingStore struct{}

func (failingStore) SaveMessage(context.Context, Message) error { return errors.New("disk full") }

func (failingStore) RecentBySession(context.Context, string, int) ([]Message, error) {
	return nil, nil
}

func (failingStore) Close() error { return nil }

func TestRecorderLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewRecorder(failingStore{}, logger)
	r.Record("s1", "t1", RoleAssistant, "hello")
	r.Wait()

	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("log output = %q, want save failure", buf.String())
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Record("s1", "t1", RoleUser, "x")
	r.Wait()
	if NewRecorder(nil, nil) != nil {
		t.Fatalf("NewRecorder(nil) should be nil")
	}
}
