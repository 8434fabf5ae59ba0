package consoleauth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeNotRegistered     = "ADMIN_NOT_REGISTERED"
	TextCodeSignInCancelled   = "SIGN_IN_CANCELLED"
	TextCodeNoActiveSession   = "NO_ACTIVE_SESSION"
	TextCodeAdminSuspended    = "ADMIN_SUSPENDED"
	TextCodeAdminInactive     = "ADMIN_INACTIVE"
	TextCodeInvalidRole       = "INVALID_ADMIN_ROLE"
	TextCodeInvalidStatus     = "INVALID_ADMIN_STATUS"
	TextCodeInvalidTransition = "INVALID_SESSION_TRANSITION"
	TextCodeAssertionExpired  = "ASSERTION_EXPIRED"
	TextCodeAssertionInvalid  = "ASSERTION_INVALID"
)

// ErrNotRegistered is returned when a verified assertion has no matching admin.
var ErrNotRegistered = errors.New("admin is not registered", errors.CategoryAuth).
	WithTextCode(TextCodeNotRegistered).
	WithCode(errors.CodeNotFound)

// ErrSignInCancelled is returned when the interactive sign-in is dismissed.
var ErrSignInCancelled = errors.New("sign in was cancelled", errors.CategoryAuth).
	WithTextCode(TextCodeSignInCancelled).
	WithCode(errors.CodeUnauthorized)

// ErrNoActiveSession is returned when an operation needs a live session and none exists.
var ErrNoActiveSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(errors.CodeUnauthorized)

// ErrAdminSuspended is returned when the admin account is suspended.
var ErrAdminSuspended = errors.New("admin account is suspended", errors.CategoryAuth).
	WithTextCode(TextCodeAdminSuspended).
	WithCode(errors.CodeForbidden)

// ErrAdminInactive is returned when the admin account is inactive.
var ErrAdminInactive = errors.New("admin account is inactive", errors.CategoryAuth).
	WithTextCode(TextCodeAdminInactive).
	WithCode(errors.CodeForbidden)

// ErrInvalidRole is returned when a role value is outside the known set.
var ErrInvalidRole = errors.New("invalid admin role", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(errors.CodeBadRequest)

// ErrInvalidStatus is returned when a status value is outside the known set.
var ErrInvalidStatus = errors.New("invalid admin status", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidStatus).
	WithCode(errors.CodeBadRequest)

// ErrInvalidTransition is returned when a requested session state change is not allowed.
var ErrInvalidTransition = errors.New("invalid session state transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrAssertionExpired is returned when the identity assertion is past its expiry.
var ErrAssertionExpired = errors.New("identity assertion expired", errors.CategoryAuth).
	WithTextCode(TextCodeAssertionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrAssertionInvalid is returned when the identity assertion fails validation.
var ErrAssertionInvalid = errors.New("identity assertion invalid", errors.CategoryAuth).
	WithTextCode(TextCodeAssertionInvalid).
	WithCode(errors.CodeUnauthorized)

// IsNotRegistered checks whether err carries the not-registered text code,
// regardless of how many layers wrapped it on the way up.
func IsNotRegistered(err error) bool {
	return hasTextCode(err, TextCodeNotRegistered)
}

// IsSignInCancelled checks whether err represents a dismissed sign-in flow.
func IsSignInCancelled(err error) bool {
	return hasTextCode(err, TextCodeSignInCancelled)
}

// hasTextCode walks the source chain so wrapped errors keep their identity.
func hasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = richErr.Source
	}
	return false
}

// cloneWithMetadata attaches metadata to a copy of a shared sentinel so the
// sentinel itself never mutates. The copy keeps the sentinel as its source,
// which is what errors.Is matches on.
func cloneWithMetadata(base *errors.Error, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(metadata)
}

// statusAuthError maps a non-active account status to its rejection error.
func statusAuthError(status AdminStatus) error {
	switch status {
	case StatusSuspended:
		return ErrAdminSuspended
	case StatusInactive:
		return ErrAdminInactive
	default:
		return nil
	}
}
