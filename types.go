package consoleauth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Assertion is a verified statement of identity issued by the federated
// provider. The raw token travels to the console API as a bearer credential;
// the profile fields are display-only.
type Assertion struct {
	Token       string
	SubjectID   string
	Email       string
	DisplayName string
	ExpiresAt   time.Time
}

// Expired reports whether the assertion is past its expiry at the given time.
func (a *Assertion) Expired(now time.Time) bool {
	if a == nil {
		return true
	}
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// AuthStateListener is notified when the provider's session changes. A nil
// assertion means the provider has no signed-in identity.
type AuthStateListener func(assertion *Assertion)

// CancelFunc detaches a previously registered listener.
type CancelFunc func()

// IdentityProvider abstracts the federated identity service the console
// authenticates against (interactive sign-in, silent session restore,
// sign-out, and change notifications).
type IdentityProvider interface {
	// SignIn runs the interactive flow and returns the resulting assertion.
	// A dismissed flow returns ErrSignInCancelled.
	SignIn(ctx context.Context) (*Assertion, error)

	// CurrentAssertion returns the provider's live assertion, or
	// ErrNoActiveSession when nobody is signed in.
	CurrentAssertion(ctx context.Context) (*Assertion, error)

	// SignOut clears the provider-side session. Safe to call when already
	// signed out.
	SignOut(ctx context.Context) error

	// Subscribe registers a listener for provider session changes and
	// returns the cancel handle that detaches it.
	Subscribe(listener AuthStateListener) CancelFunc
}

// Config holds session options
type Config interface {
	GetAPIBaseURL() string
	GetIdleTimeout() time.Duration
	GetJWKSEndpoint() string
	GetIssuer() string
	GetAudience() []string
}

// DefaultLogger returns the printf-backed fallback logger.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
