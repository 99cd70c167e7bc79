package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute, 10)
	s := m.Create("u1")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Status != StatusActive {
		t.Fatalf("unexpected session: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", ended.Status, StatusEnded)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerAppendTurnAndContext(t *testing.T) {
	m := NewManager(time.Minute, 10)
	s := m.Create("u1")

	if err := m.AppendTurn(s.ID, "user", "hello"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := m.AppendTurn(s.ID, "assistant", "hi there"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	turns, err := m.Context(s.ID)
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Context() = %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "hello" {
		t.Fatalf("first turn = %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Content != "hi there" {
		t.Fatalf("second turn = %+v", turns[1])
	}

	if err := m.AppendTurn("missing", "user", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendTurn(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerTurnWindowTrimsOldest(t *testing.T) {
	m := NewManager(time.Minute, 3)
	s := m.Create("u1")

	for i := 0; i < 5; i++ {
		if err := m.AppendTurn(s.ID, "user", fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	turns, err := m.Context(s.ID)
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Context() = %d turns, want window of 3", len(turns))
	}
	if turns[0].Content != "turn 2" || turns[2].Content != "turn 4" {
		t.Fatalf("window kept wrong turns: %+v", turns)
	}
}

func TestManagerClonesOut(t *testing.T) {
	m := NewManager(time.Minute, 10)
	s := m.Create("u1")
	m.AppendTurn(s.ID, "user", "hello")

	got, _ := m.Get(s.ID)
	got.Turns[0].Content = "mutated"
	got.Status = StatusEnded

	again, _ := m.Get(s.ID)
	if again.Turns[0].Content != "hello" || again.Status != StatusActive {
		t.Fatalf("caller mutation leaked into manager: %+v", again)
	}
}

func TestManagerExpiresInactiveSessions(t *testing.T) {
	m := NewManager(200*time.Millisecond, 10)

	var mu sync.Mutex
	var expired []string
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		expired = append(expired, s.ID)
		mu.Unlock()
	})

	stale := m.Create("u1")
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	time.Sleep(250 * time.Millisecond)
	fresh := m.Create("u2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := m.Get(stale.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status == StatusEnded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stale session never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, _ := m.Get(fresh.ID)
	if got.Status != StatusActive {
		t.Fatalf("fresh session expired too")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != stale.ID {
		t.Fatalf("expire hook saw %v, want [%s]", expired, stale.ID)
	}
}

func TestManagerTouchDefersExpiry(t *testing.T) {
	m := NewManager(time.Minute, 10)
	s := m.Create("u1")

	before, _ := m.Get(s.ID)
	time.Sleep(5 * time.Millisecond)
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	after, _ := m.Get(s.ID)
	if !after.LastActivityAt.After(before.LastActivityAt) {
		t.Fatalf("Touch() did not advance LastActivityAt")
	}
}
