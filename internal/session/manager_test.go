package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireRejectsDuplicateContext(t *testing.T) {
	m := NewManager(time.Minute)

	h, err := m.Acquire("interview-tab-1")
	if err != nil {
		t.Fatalf("Acquire error = %v", err)
	}
	if h.ContextID != "interview-tab-1" || h.Status != StatusActive {
		t.Fatalf("unexpected handle: %+v", h)
	}

	if _, err := m.Acquire("interview-tab-1"); !errors.Is(err, ErrContextBusy) {
		t.Fatalf("duplicate Acquire error = %v, want ErrContextBusy", err)
	}

	if _, err := m.Release(h.ID); err != nil {
		t.Fatalf("Release error = %v", err)
	}
	if _, err := m.Acquire("interview-tab-1"); err != nil {
		t.Fatalf("Acquire after Release error = %v", err)
	}
}

func TestAcquireAnonymousContextsNeverCollide(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Acquire(""); err != nil {
		t.Fatalf("first anonymous Acquire error = %v", err)
	}
	if _, err := m.Acquire(""); err != nil {
		t.Fatalf("second anonymous Acquire error = %v", err)
	}
	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
}

func TestReleaseUnknownHandle(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Release("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Release error = %v, want ErrNotFound", err)
	}
}

func TestJanitorExpiresStaleHandles(t *testing.T) {
	m := NewManager(10 * time.Millisecond)

	expired := make(chan *Handle, 1)
	m.SetExpireHook(func(h *Handle) { expired <- h })

	h, err := m.Acquire("stale-tab")
	if err != nil {
		t.Fatalf("Acquire error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 5*time.Millisecond)

	select {
	case got := <-expired:
		if got.ID != h.ID {
			t.Fatalf("expired handle %q, want %q", got.ID, h.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never expired the stale handle")
	}

	// Context is free again.
	if _, err := m.Acquire("stale-tab"); err != nil {
		t.Fatalf("Acquire after expiry error = %v", err)
	}
}

func TestTouchKeepsHandleAlive(t *testing.T) {
	m := NewManager(40 * time.Millisecond)
	h, err := m.Acquire("busy-tab")
	if err != nil {
		t.Fatalf("Acquire error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		time.Sleep(15 * time.Millisecond)
		if err := m.Touch(h.ID); err != nil {
			t.Fatalf("Touch error = %v (handle expired while active)", err)
		}
	}
}
