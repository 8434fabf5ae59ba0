package consoleauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/melodia/console-auth"
)

// stubIdentity implements consoleauth.IdentityProvider with a fixed
// assertion and recorded sign-outs.
type stubIdentity struct {
	mu           sync.Mutex
	assertion    *consoleauth.Assertion
	signInErr    error
	signOutErr   error
	signOuts     int
	listener     consoleauth.AuthStateListener
	unsubscribed bool
}

func (p *stubIdentity) SignIn(_ context.Context) (*consoleauth.Assertion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.signInErr != nil {
		return nil, p.signInErr
	}
	if p.assertion == nil {
		return nil, consoleauth.ErrSignInCancelled
	}
	return p.assertion, nil
}

func (p *stubIdentity) CurrentAssertion(_ context.Context) (*consoleauth.Assertion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.assertion == nil {
		return nil, consoleauth.ErrNoActiveSession
	}
	return p.assertion, nil
}

func (p *stubIdentity) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.signOuts++
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.assertion = nil
	return nil
}

func (p *stubIdentity) Subscribe(listener consoleauth.AuthStateListener) consoleauth.CancelFunc {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listener = listener
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listener = nil
		p.unsubscribed = true
	}
}

func (p *stubIdentity) setAssertion(assertion *consoleauth.Assertion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertion = assertion
}

func (p *stubIdentity) signOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

// notify simulates a provider-side session change reaching the subscriber.
func (p *stubIdentity) notify(assertion *consoleauth.Assertion) {
	p.mu.Lock()
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener(assertion)
	}
}

// captureSink collects every activity event the store publishes.
type captureSink struct {
	mu     sync.Mutex
	events []consoleauth.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event consoleauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) count(eventType consoleauth.ActivityEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			total++
		}
	}
	return total
}

func (s *captureSink) last(eventType consoleauth.ActivityEventType) (consoleauth.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].EventType == eventType {
			return s.events[i], true
		}
	}
	return consoleauth.ActivityEvent{}, false
}

type testConfig struct {
	baseURL string
	idle    time.Duration
}

func (c testConfig) GetAPIBaseURL() string { return c.baseURL }

func (c testConfig) GetIdleTimeout() time.Duration {
	if c.idle == 0 {
		return consoleauth.DefaultIdleTimeout
	}
	return c.idle
}

func (c testConfig) GetJWKSEndpoint() string { return "" }
func (c testConfig) GetIssuer() string       { return "" }
func (c testConfig) GetAudience() []string   { return nil }

// newTestVerifier points a SessionVerifier at an in-process API server.
func newTestVerifier(t *testing.T, handler http.Handler) *consoleauth.SessionVerifier {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return consoleauth.NewSessionVerifier(testConfig{baseURL: srv.URL})
}

// recordAPIHandler answers every verify/register call with the given record
// and accepts all mutations.
func recordAPIHandler(record *consoleauth.AuthorizationRecord) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/admin/auth/verify", "/api/admin/auth/register":
			json.NewEncoder(w).Encode(record)
		default:
			w.Write([]byte("{}"))
		}
	}
}

func writeAPIFailure(w http.ResponseWriter, status int, textCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"text_code": textCode,
	})
}

func activeRecord(subjectID string, role consoleauth.AdminRole) *consoleauth.AuthorizationRecord {
	return &consoleauth.AuthorizationRecord{
		SubjectID:   subjectID,
		Email:       subjectID + "@example.com",
		DisplayName: subjectID,
		Role:        role,
		Status:      consoleauth.StatusActive,
	}
}

func testAssertion(subjectID string) *consoleauth.Assertion {
	return &consoleauth.Assertion{
		Token:       "assertion-" + subjectID,
		SubjectID:   subjectID,
		Email:       subjectID + "@example.com",
		DisplayName: subjectID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

// pathContext overrides Path() from the base mock context.
type pathContext struct {
	*router.MockContext
	path string
}

func (m *pathContext) Path() string {
	return m.path
}
