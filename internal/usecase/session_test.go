package usecase

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"doppel/internal/domain"
)

func TestSessionAddAndRewind(t *testing.T) {
	s := NewSession()
	if s.ID == "" {
		t.Fatal("empty session ID")
	}

	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "first"})
	s.AddMessage(domain.Message{Role: domain.RoleAssistant, Content: "second"})
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	s.Rewind(1)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Errorf("after rewind: %+v", msgs)
	}

	// Rewind past the end is a no-op.
	s.Rewind(5)
	if s.Len() != 1 {
		t.Errorf("len = %d after oversized rewind", s.Len())
	}
}

func TestSessionPendingLifecycle(t *testing.T) {
	s := NewSession()
	if s.HasPending() {
		t.Fatal("new session has pending action")
	}

	s.SetPending(&domain.PendingAction{
		Call:      domain.ToolCall{ID: "c1", Name: "send_email"},
		Plan:      "send it",
		CreatedAt: time.Now(),
	})
	if !s.HasPending() {
		t.Fatal("pending not set")
	}

	p := s.TakePending()
	if p == nil || p.Call.ID != "c1" {
		t.Fatalf("taken = %+v", p)
	}
	if s.HasPending() {
		t.Error("pending not cleared by TakePending")
	}
	if s.TakePending() != nil {
		t.Error("second TakePending returned a value")
	}
}

func TestSessionPendingSnapshot(t *testing.T) {
	s := NewSession()
	if s.PendingSnapshot() != nil {
		t.Fatal("snapshot of empty session is non-nil")
	}

	s.SetPending(&domain.PendingAction{
		Call: domain.ToolCall{ID: "c1", Name: "send_email"},
		Plan: "send it",
	})

	snap := s.PendingSnapshot()
	if snap == nil || snap.Plan != "send it" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !s.HasPending() {
		t.Error("snapshot cleared the pending action")
	}

	// Mutating the snapshot must not touch the stored action.
	snap.Plan = "changed"
	if got := s.PendingSnapshot().Plan; got != "send it" {
		t.Errorf("stored plan = %q after snapshot mutation", got)
	}
}

func TestSessionManagerPersistence(t *testing.T) {
	dir := t.TempDir()

	sm := NewSessionManager(dir)
	s := sm.GetOrCreate("cli-default")
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "remember me"})
	s.SetPending(&domain.PendingAction{
		Call: domain.ToolCall{ID: "c1", Name: "send_email", Arguments: json.RawMessage(`{"to":["a@b.c"]}`)},
		Plan: "send",
	})
	if err := sm.Save("cli-default"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Fresh manager loads from disk, including the pending action.
	sm2 := NewSessionManager(dir)
	loaded := sm2.GetOrCreate("cli-default")
	if loaded.Len() != 1 {
		t.Fatalf("loaded len = %d, want 1", loaded.Len())
	}
	if !loaded.HasPending() {
		t.Fatal("pending action lost across restart")
	}
	if loaded.Pending.Call.Name != "send_email" {
		t.Errorf("pending call = %+v", loaded.Pending.Call)
	}
}

func TestSessionManagerGetUnknown(t *testing.T) {
	sm := NewSessionManager(t.TempDir())

	_, err := sm.Get("missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerRejectsUnsafeIDs(t *testing.T) {
	sm := NewSessionManager(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`, "nul\x00byte"} {
		if err := sm.Save(id); err == nil {
			t.Errorf("Save(%q) accepted an unsafe ID", id)
		}
	}
}

func TestSessionManagerDelete(t *testing.T) {
	sm := NewSessionManager(t.TempDir())
	sm.GetOrCreate("gone")
	if err := sm.Save("gone"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := sm.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sm.Get("gone"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("session still present after delete")
	}
	if err := sm.Delete("gone"); err == nil {
		t.Error("second delete did not fail")
	}
}

func TestReapStaleSessions(t *testing.T) {
	sm := NewSessionManager(t.TempDir())

	stale := sm.GetOrCreate("stale")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	sm.GetOrCreate("fresh")

	if n := sm.ReapStaleSessions(time.Hour); n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}
	if _, err := sm.Get("stale"); err == nil {
		t.Error("stale session survived reaping")
	}
	if _, err := sm.Get("fresh"); err != nil {
		t.Error("fresh session was reaped")
	}
}
