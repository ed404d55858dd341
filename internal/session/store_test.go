package session

import (
	"sync"
	"testing"
	"time"
)

func TestGetOrCreateCreatesOnFirstRequest(t *testing.T) {
	s := NewStore(0)
	sess := s.GetOrCreate("")
	if sess.ID == "" {
		t.Fatalf("expected generated id")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
	// Unknown id also creates rather than failing.
	sess2 := s.GetOrCreate("does-not-exist")
	if sess2.ID == "does-not-exist" {
		t.Fatalf("unknown ids must not be adopted verbatim")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", s.Len())
	}
}

func TestGetOrCreateReusesExisting(t *testing.T) {
	s := NewStore(0)
	sess := s.Create()
	again := s.GetOrCreate(sess.ID)
	if again.ID != sess.ID {
		t.Fatalf("expected same session back")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	s := NewStore(0)
	sess := s.Create()
	for _, c := range []string{"one", "two", "three"} {
		if !s.Append(sess.ID, Message{Role: "user", Content: c}) {
			t.Fatalf("append failed")
		}
	}
	got, _ := s.Get(sess.ID)
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "one" || got.Messages[2].Content != "three" {
		t.Fatalf("history out of order: %+v", got.Messages)
	}
}

func TestGetSnapshotsUnderConcurrentAppend(t *testing.T) {
	s := NewStore(0)
	sess := s.Create()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Append(sess.ID, Message{Role: "user", Content: "m"})
		}
	}()
	// Reading the returned copy must be safe while appends run.
	for i := 0; i < 200; i++ {
		got, ok := s.Get(sess.ID)
		if !ok {
			t.Fatalf("session vanished")
		}
		for _, m := range got.Messages {
			if m.Content != "m" {
				t.Fatalf("unexpected message %+v", m)
			}
		}
	}
	wg.Wait()

	got, _ := s.Get(sess.ID)
	if len(got.Messages) != 200 {
		t.Fatalf("expected 200 messages, got %d", len(got.Messages))
	}
}

func TestCloseRemoves(t *testing.T) {
	s := NewStore(0)
	sess := s.Create()
	if !s.Close(sess.ID) {
		t.Fatalf("close failed")
	}
	if _, ok := s.Get(sess.ID); ok {
		t.Fatalf("closed session still present")
	}
	if s.Close(sess.ID) {
		t.Fatalf("double close should report false")
	}
}

func TestEvictIdle(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	old := s.Create()
	now = now.Add(2 * time.Minute)
	fresh := s.Create()
	n := s.EvictIdle()
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := s.Get(old.ID); ok {
		t.Fatalf("idle session not evicted")
	}
	if _, ok := s.Get(fresh.ID); !ok {
		t.Fatalf("fresh session evicted")
	}
}

func TestValidateSessionBeforeMessages(t *testing.T) {
	if err := ValidateSession(nil); err == nil || !IsValidation(err) {
		t.Fatalf("expected validation error for nil session, got %v", err)
	}
	err := ValidateSession(&Session{ID: " "})
	ve, ok := err.(ValidationError)
	if !ok || ve.Kind != InvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestValidateServerSecurity(t *testing.T) {
	err := ValidateSession(&Session{ID: "s", Servers: []string{"../../etc/passwd"}})
	ve, ok := err.(ValidationError)
	if !ok || ve.Kind != SecurityViolation {
		t.Fatalf("expected security violation, got %v", err)
	}
	err = ValidateSession(&Session{ID: "s", Servers: []string{"file:///etc/passwd"}})
	ve, ok = err.(ValidationError)
	if !ok || ve.Kind != SecurityViolation {
		t.Fatalf("expected security violation for scheme, got %v", err)
	}
	if err := ValidateSession(&Session{ID: "s", Servers: []string{"https://tools.local/mcp"}}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateMessageSchema(t *testing.T) {
	if err := ValidateMessage(Message{Role: "wizard", Content: "x"}); err == nil {
		t.Fatalf("expected schema validation failure for role")
	}
	if err := ValidateMessage(Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessage(Message{Role: "user", Content: string([]byte{0xff, 0xfe})}); err == nil {
		t.Fatalf("expected invalid UTF-8 rejection")
	}
}
