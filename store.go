package consoleauth

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionState is the lifecycle state of the console session.
type SessionState string

const (
	// StateInitializing means the store has not resolved the initial
	// session yet. The console shows nothing actionable in this state.
	StateInitializing SessionState = "INITIALIZING"
	// StateUnauthenticated means there is no session.
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	// StatePendingApproval means the admin is registered but still WAITING.
	StatePendingApproval SessionState = "PENDING_APPROVAL"
	// StateAuthenticated means a live session with an idle window.
	StateAuthenticated SessionState = "AUTHENTICATED"
)

// StoreOption customizes SessionStore construction.
type StoreOption func(*SessionStore)

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreActivitySink sets the ActivitySink used to publish session events.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithIdleSlot sets the durable slot backing the idle window.
func WithIdleSlot(slot IdleSlot) StoreOption {
	return func(s *SessionStore) {
		if slot != nil {
			s.slot = slot
		}
	}
}

// WithIdleTimeout overrides the idle window duration.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(s *SessionStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// SessionStore owns the console session: the state machine, the current
// AuthorizationRecord, and the idle window that bounds authenticated
// sessions. All operations serialize on an internal mutex so session state
// never tears under concurrent access.
type SessionStore struct {
	mu          sync.Mutex
	provider    IdentityProvider
	verifier    *SessionVerifier
	slot        IdleSlot
	idleTimeout time.Duration
	now         func() time.Time
	logger      Logger
	sink        ActivitySink
	transitions map[SessionState]map[SessionState]struct{}

	state       SessionState
	record      *AuthorizationRecord
	window      *IdleWindow
	timer       *time.Timer
	timerGen    uint64
	unsubscribe CancelFunc
}

// NewSessionStore builds a store in the INITIALIZING state. Call Init to
// resolve the initial session.
func NewSessionStore(provider IdentityProvider, verifier *SessionVerifier, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		provider:    provider,
		verifier:    verifier,
		slot:        NewMemoryIdleSlot(),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		logger:      defLogger{},
		sink:        noopActivitySink{},
		state:       StateInitializing,
		transitions: map[SessionState]map[SessionState]struct{}{
			StateInitializing: {
				StateUnauthenticated: {},
				StatePendingApproval: {},
				StateAuthenticated:   {},
			},
			StateUnauthenticated: {
				StateAuthenticated:   {},
				StatePendingApproval: {},
			},
			StatePendingApproval: {
				StateAuthenticated:   {},
				StateUnauthenticated: {},
			},
			StateAuthenticated: {
				StateUnauthenticated: {},
				StatePendingApproval: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Init resolves the initial session exactly once: it restores the provider's
// live assertion if any, honors a durable idle window that survived a
// reload, and always lands in a terminal resolution (never stuck in
// INITIALIZING). Restore failures resolve silently to UNAUTHENTICATED; they
// are recorded through the activity sink, not surfaced to the caller.
func (s *SessionStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		return nil
	}

	defer func() {
		if s.unsubscribe == nil {
			s.unsubscribe = s.provider.Subscribe(s.handleProviderChange)
		}
	}()

	assertion, err := s.provider.CurrentAssertion(ctx)
	if err != nil || assertion == nil {
		s.clearSlotLocked(ctx)
		return s.transitionLocked(ctx, StateUnauthenticated)
	}

	startedAt, occupied, slotErr := s.slot.Load(ctx)
	if slotErr != nil {
		s.logger.Warn("idle slot load failed, treating as empty: %v", slotErr)
		occupied = false
	}

	if occupied {
		window := IdleWindow{StartedAt: startedAt, Duration: s.idleTimeout}
		if window.Expired(s.now()) {
			// the countdown ran out while the tab was away
			s.recordEventLocked(ctx, ActivityEvent{
				EventType: ActivityEventIdleExpired,
				SubjectID: assertion.SubjectID,
			})
			s.signOutProviderLocked(ctx)
			s.clearSlotLocked(ctx)
			return s.transitionLocked(ctx, StateUnauthenticated)
		}
	}

	record, verifyErr := s.verifier.Verify(ctx, assertion.Token)
	if verifyErr != nil {
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventRestoreFailure,
			SubjectID: assertion.SubjectID,
			Metadata:  map[string]any{"error": verifyErr.Error()},
		})
		s.signOutProviderLocked(ctx)
		s.clearSlotLocked(ctx)
		return s.transitionLocked(ctx, StateUnauthenticated)
	}

	s.record = record

	if record.Pending() {
		s.clearSlotLocked(ctx)
		return s.transitionLocked(ctx, StatePendingApproval)
	}

	if occupied {
		s.window = &IdleWindow{StartedAt: startedAt, Duration: s.idleTimeout}
		s.armIdleLocked(s.window.Remaining(s.now()))
	} else {
		s.startWindowLocked(ctx)
	}

	return s.transitionLocked(ctx, StateAuthenticated)
}

// Login runs the interactive sign-in and verifies the resulting assertion
// against the console API. A WAITING admin lands in PENDING_APPROVAL with no
// idle window; everyone else gets AUTHENTICATED with a fresh window.
func (s *SessionStore) Login(ctx context.Context) (*AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assertion, err := s.provider.SignIn(ctx)
	if err != nil {
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"error": err.Error()},
		})
		if IsSignInCancelled(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "interactive sign in failed")
	}

	record, err := s.verifier.Verify(ctx, assertion.Token)
	if err != nil {
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			SubjectID: assertion.SubjectID,
			Metadata:  map[string]any{"error": err.Error()},
		})
		// leave the provider clean so a failed console login does not
		// strand a half-open identity session
		s.signOutProviderLocked(ctx)
		s.clearSlotLocked(ctx)
		return nil, err
	}

	if statusErr := statusAuthError(record.Status); statusErr != nil {
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			SubjectID: record.SubjectID,
			Metadata:  map[string]any{"status": record.Status},
		})
		s.signOutProviderLocked(ctx)
		s.clearSlotLocked(ctx)
		return nil, statusErr
	}

	from := s.state
	s.record = record

	if record.Pending() {
		s.cancelIdleLocked()
		s.window = nil
		s.clearSlotLocked(ctx)
		if err := s.transitionLocked(ctx, StatePendingApproval); err != nil {
			return nil, err
		}
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventLoginSuccess,
			Actor:     ActorRef{ID: record.SubjectID, Type: "admin"},
			SubjectID: record.SubjectID,
			FromState: from,
			ToState:   StatePendingApproval,
		})
		return s.currentLocked(), nil
	}

	s.startWindowLocked(ctx)
	if err := s.transitionLocked(ctx, StateAuthenticated); err != nil {
		return nil, err
	}

	s.recordEventLocked(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: record.SubjectID, Type: "admin"},
		SubjectID: record.SubjectID,
		FromState: from,
		ToState:   StateAuthenticated,
	})

	if err := s.verifier.TrackLogin(ctx, assertion.Token, record.SubjectID); err != nil {
		s.logger.Debug("last login tracking failed: %v", err)
	}

	return s.currentLocked(), nil
}

// Logout tears the session down: cancels the idle timer, clears the durable
// slot and the record, signs out of the provider, and lands in
// UNAUTHENTICATED. Calling it with no session is a no-op.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor := ActorRef{Type: "admin"}
	if s.record != nil {
		actor.ID = s.record.SubjectID
	}

	return s.logoutLocked(ctx, actor)
}

// ResetIdleTimer replaces the current idle window with a fresh one. Only one
// countdown is live at a time; resetting twice leaves a single timer armed
// from the second reset.
func (s *SessionStore) ResetIdleTimer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated || s.record == nil {
		return ErrNoActiveSession
	}

	s.startWindowLocked(ctx)
	return nil
}

// Refresh re-verifies the provider's current assertion and re-resolves the
// session state. This is how a WAITING admin picks up an approval granted
// elsewhere.
func (s *SessionStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assertion, err := s.provider.CurrentAssertion(ctx)
	if err != nil {
		return err
	}

	record, err := s.verifier.Verify(ctx, assertion.Token)
	if err != nil {
		return err
	}

	s.record = record

	if record.Pending() {
		if s.state != StatePendingApproval {
			s.cancelIdleLocked()
			s.window = nil
			s.clearSlotLocked(ctx)
			return s.transitionLocked(ctx, StatePendingApproval)
		}
		return nil
	}

	if s.state != StateAuthenticated {
		s.startWindowLocked(ctx)
		return s.transitionLocked(ctx, StateAuthenticated)
	}

	return nil
}

// UpdateRole changes the target admin's role through the console API. When
// the target is the current admin the local record follows, including the
// PENDING_APPROVAL handoff in either direction.
func (s *SessionStore) UpdateRole(ctx context.Context, subjectID string, role AdminRole) error {
	if !role.IsValid() {
		return cloneWithMetadata(ErrInvalidRole, map[string]any{"role": role})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return ErrNoActiveSession
	}

	assertion, err := s.provider.CurrentAssertion(ctx)
	if err != nil {
		return err
	}

	if err := s.verifier.UpdateRole(ctx, assertion.Token, subjectID, role); err != nil {
		return err
	}

	s.recordEventLocked(ctx, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     ActorRef{ID: s.record.SubjectID, Type: "admin"},
		SubjectID: subjectID,
		Metadata:  map[string]any{"role": role},
	})

	if s.record.SubjectID != subjectID {
		return nil
	}

	s.record.Role = role

	if s.state == StatePendingApproval && role != RoleWaiting {
		s.startWindowLocked(ctx)
		return s.transitionLocked(ctx, StateAuthenticated)
	}

	if s.state == StateAuthenticated && role == RoleWaiting {
		s.cancelIdleLocked()
		s.window = nil
		s.clearSlotLocked(ctx)
		return s.transitionLocked(ctx, StatePendingApproval)
	}

	return nil
}

// Teardown detaches the provider subscription and stops the idle timer
// without touching the session itself. Use it when the hosting process shuts
// down; the durable slot keeps the countdown honest across restarts.
func (s *SessionStore) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.cancelIdleLocked()
}

// State returns the current session state.
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns a copy of the active AuthorizationRecord, or nil when
// there is none.
func (s *SessionStore) Current() *AuthorizationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

// IdleRemaining reports how much of the idle window is left. The bool is
// false when no window is counting down.
func (s *SessionStore) IdleRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.window == nil {
		return 0, false
	}
	return s.window.Remaining(s.now()), true
}

func (s *SessionStore) currentLocked() *AuthorizationRecord {
	if s.record == nil {
		return nil
	}
	record := *s.record
	return &record
}

func (s *SessionStore) handleProviderChange(assertion *Assertion) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	if assertion == nil {
		// provider session disappeared out-of-band
		if s.state == StateAuthenticated || s.state == StatePendingApproval {
			if err := s.logoutLocked(ctx, ActorRef{Type: "provider"}); err != nil {
				s.logger.Warn("forced logout after provider sign out failed: %v", err)
			}
		}
		return
	}

	if s.state != StateUnauthenticated {
		return
	}

	record, err := s.verifier.Verify(ctx, assertion.Token)
	if err != nil {
		s.logger.Debug("provider change verification failed: %v", err)
		return
	}

	s.record = record

	if record.Pending() {
		if err := s.transitionLocked(ctx, StatePendingApproval); err != nil {
			s.logger.Warn("provider change transition failed: %v", err)
		}
		return
	}

	s.startWindowLocked(ctx)
	if err := s.transitionLocked(ctx, StateAuthenticated); err != nil {
		s.logger.Warn("provider change transition failed: %v", err)
	}
}

func (s *SessionStore) logoutLocked(ctx context.Context, actor ActorRef) error {
	s.cancelIdleLocked()
	s.window = nil

	subjectID := ""
	if s.record != nil {
		subjectID = s.record.SubjectID
	}
	s.record = nil

	s.clearSlotLocked(ctx)
	signOutErr := s.signOutProviderLocked(ctx)

	if s.state != StateUnauthenticated {
		if err := s.transitionLocked(ctx, StateUnauthenticated); err != nil {
			return err
		}
		s.recordEventLocked(ctx, ActivityEvent{
			EventType: ActivityEventLogout,
			Actor:     actor,
			SubjectID: subjectID,
		})
	}

	if signOutErr != nil {
		return goerrors.Wrap(signOutErr, goerrors.CategoryOperation, "provider sign out failed")
	}

	return nil
}

func (s *SessionStore) transitionLocked(ctx context.Context, target SessionState) error {
	from := s.state
	if from == target {
		return nil
	}

	allowed, ok := s.transitions[from]
	if !ok {
		return cloneWithMetadata(ErrInvalidTransition, map[string]any{
			"from": from,
			"to":   target,
		})
	}
	if _, exists := allowed[target]; !exists {
		return cloneWithMetadata(ErrInvalidTransition, map[string]any{
			"from": from,
			"to":   target,
		})
	}

	s.state = target

	s.recordEventLocked(ctx, ActivityEvent{
		EventType: ActivityEventStateChanged,
		FromState: from,
		ToState:   target,
	})

	return nil
}

// startWindowLocked opens a fresh idle window, persists its start to the
// durable slot, and arms the expiry timer.
func (s *SessionStore) startWindowLocked(ctx context.Context) {
	now := s.now()
	s.window = &IdleWindow{StartedAt: now, Duration: s.idleTimeout}

	if err := s.slot.Save(ctx, now); err != nil {
		s.logger.Warn("idle slot save failed: %v", err)
	}

	s.armIdleLocked(s.idleTimeout)
}

func (s *SessionStore) armIdleLocked(remaining time.Duration) {
	s.cancelIdleLocked()
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(remaining, func() {
		s.expireIdle(gen)
	})
}

func (s *SessionStore) cancelIdleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// invalidate any callback already in flight
	s.timerGen++
}

func (s *SessionStore) expireIdle(gen uint64) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.timerGen {
		return
	}
	s.timer = nil

	if s.state != StateAuthenticated {
		return
	}

	subjectID := ""
	if s.record != nil {
		subjectID = s.record.SubjectID
	}

	s.recordEventLocked(ctx, ActivityEvent{
		EventType: ActivityEventIdleExpired,
		SubjectID: subjectID,
		Metadata:  map[string]any{"idle_timeout": s.idleTimeout.String()},
	})

	if err := s.logoutLocked(ctx, ActorRef{Type: "system"}); err != nil {
		s.logger.Warn("idle expiry logout failed: %v", err)
	}
}

func (s *SessionStore) clearSlotLocked(ctx context.Context) {
	if err := s.slot.Clear(ctx); err != nil {
		s.logger.Warn("idle slot clear failed: %v", err)
	}
}

func (s *SessionStore) signOutProviderLocked(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("provider sign out failed: %v", err)
		return err
	}
	return nil
}

func (s *SessionStore) recordEventLocked(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.sink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("session activity sink error: %v", err)
	}
}
