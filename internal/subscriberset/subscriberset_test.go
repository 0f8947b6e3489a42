package subscriberset

import (
	"testing"
	"time"
)

func TestNextIdleRoundRobin(t *testing.T) {
	s := New()
	s.Attach("a", "sess-a", false)
	s.Attach("b", "sess-b", false)

	now := time.Now()

	first, ok := s.NextIdle(now)
	if !ok || first.ID != "a" {
		t.Fatalf("first NextIdle = %v, want a", first)
	}

	second, ok := s.NextIdle(now)
	if !ok || second.ID != "b" {
		t.Fatalf("second NextIdle = %v, want b", second)
	}

	if _, ok := s.NextIdle(now); ok {
		t.Fatal("NextIdle should report ok=false once all subscribers are OnDelivery")
	}

	s.MarkIdle("a")
	third, ok := s.NextIdle(now)
	if !ok || third.ID != "a" {
		t.Fatalf("third NextIdle = %v, want a (only idle subscriber)", third)
	}
}

func TestAttachKicksIncumbentForSingleSubscriber(t *testing.T) {
	s := New()
	s.Attach("a", "sess-a", true)

	kicked := s.Attach("b", "sess-b", true)
	if kicked == nil || kicked.ID != "a" {
		t.Fatalf("Attach should kick incumbent a, got %v", kicked)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after kick", s.Len())
	}
}

func TestDeadSince(t *testing.T) {
	s := New()
	s.Attach("a", "sess-a", false)

	past := time.Now().Add(-time.Minute)
	s.NextIdle(past)

	dead := s.DeadSince(time.Now(), 30*time.Second)
	if len(dead) != 1 || dead[0].ID != "a" {
		t.Fatalf("DeadSince = %v, want [a]", dead)
	}
}

func TestDetach(t *testing.T) {
	s := New()
	s.Attach("a", "sess-a", false)

	sub, ok := s.Detach("a")
	if !ok || sub.ID != "a" {
		t.Fatalf("Detach = %v, %v, want a, true", sub, ok)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after detach", s.Len())
	}

	if _, ok := s.Detach("a"); ok {
		t.Fatal("Detach of already-removed subscriber should report ok=false")
	}
}
