package consoleauth

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleTimeout bounds every authenticated session. An admin who goes
// idle for this long is logged out no matter what the provider says.
const DefaultIdleTimeout = 30 * time.Minute

// IdleWindow is the countdown that bounds an authenticated session.
type IdleWindow struct {
	StartedAt time.Time
	Duration  time.Duration
}

// Remaining returns how much of the window is left at the given time.
// It never goes below zero.
func (w IdleWindow) Remaining(now time.Time) time.Duration {
	rem := w.Duration - now.Sub(w.StartedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// Expired reports whether the window's invariant (elapsed <= duration) no
// longer holds at the given time.
func (w IdleWindow) Expired(now time.Time) bool {
	return now.Sub(w.StartedAt) > w.Duration
}

// IdleSlot is the durable, per-tab slot that survives reloads. It stores at
// most one window start; an empty slot means no authenticated session is
// counting down.
type IdleSlot interface {
	// Load returns the stored window start. The bool is false when the slot
	// is empty.
	Load(ctx context.Context) (time.Time, bool, error)

	// Save overwrites the slot with the given window start.
	Save(ctx context.Context, startedAt time.Time) error

	// Clear empties the slot. Clearing an empty slot is a no-op.
	Clear(ctx context.Context) error
}

// MemoryIdleSlot is the in-process IdleSlot used when no durable backend is
// configured. Useful for tests and single-process deployments.
type MemoryIdleSlot struct {
	mu        sync.Mutex
	startedAt time.Time
	occupied  bool
}

// NewMemoryIdleSlot returns an empty in-memory slot.
func NewMemoryIdleSlot() *MemoryIdleSlot {
	return &MemoryIdleSlot{}
}

// Load implements IdleSlot.
func (s *MemoryIdleSlot) Load(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt, s.occupied, nil
}

// Save implements IdleSlot.
func (s *MemoryIdleSlot) Save(_ context.Context, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = startedAt
	s.occupied = true
	return nil
}

// Clear implements IdleSlot.
func (s *MemoryIdleSlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = time.Time{}
	s.occupied = false
	return nil
}
