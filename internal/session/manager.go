package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrContextBusy rejects a second concurrent stream for the same UI
	// context; the caller must release (or interrupt) the live one first.
	ErrContextBusy = errors.New("context already has an active session")
)

// Handle identifies one streaming session. Exactly one active handle may
// exist per UI context at a time, which replaces the hidden process-wide
// "is something speaking" flag with an explicit, owned object.
type Handle struct {
	ID             string    `json:"session_id"`
	ContextID      string    `json:"context_id"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	handles           map[string]*Handle
	handleByContext   map[string]string
	inactivityTimeout time.Duration
	onExpire          func(*Handle)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		handles:           make(map[string]*Handle),
		handleByContext:   make(map[string]string),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Handle)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Acquire creates the active handle for a UI context. An empty contextID
// gets a private anonymous context, so uniqueness is only enforced for
// callers that identify themselves.
func (m *Manager) Acquire(contextID string) (*Handle, error) {
	now := time.Now().UTC()
	if contextID == "" {
		contextID = "anon-" + uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.handleByContext[contextID]; ok {
		if h, exists := m.handles[id]; exists && h.Status == StatusActive {
			return nil, ErrContextBusy
		}
	}
	h := &Handle{
		ID:             uuid.NewString(),
		ContextID:      contextID,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.handles[h.ID] = h
	m.handleByContext[contextID] = h.ID
	return clone(h), nil
}

func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(h), nil
}

// Touch refreshes the inactivity clock while a stream is emitting.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return ErrNotFound
	}
	h.LastActivityAt = time.Now().UTC()
	return nil
}

// Release ends a handle and frees its context for the next session.
func (m *Manager) Release(id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return nil, ErrNotFound
	}
	h.Status = StatusEnded
	h.LastActivityAt = time.Now().UTC()
	delete(m.handleByContext, h.ContextID)
	delete(m.handles, h.ID)
	return clone(h), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, h := range m.handles {
		if h.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor expires handles whose streams stopped touching them, so a
// crashed client cannot hold its context busy forever.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Handle

	m.mu.Lock()
	for _, h := range m.handles {
		if h.Status != StatusActive {
			continue
		}
		if now.Sub(h.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		h.Status = StatusEnded
		h.LastActivityAt = now
		expired = append(expired, clone(h))
		delete(m.handleByContext, h.ContextID)
		delete(m.handles, h.ID)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, h := range expired {
			hook(h)
		}
	}
}

func clone(h *Handle) *Handle {
	c := *h
	return &c
}
