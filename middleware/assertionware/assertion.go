// Package assertionware guards API routes with bearer identity assertions.
// It validates the assertion, resolves the caller's AuthorizationRecord, and
// enforces account status plus an optional role floor before the handler
// runs.
package assertionware

import (
	"context"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/melodia/console-auth"
)

var ErrAssertionMissingOrMalformed = errors.New("missing or malformed assertion")

// AssertionValidator validates a raw bearer assertion.
type AssertionValidator interface {
	Validate(tokenString string) (*consoleauth.Assertion, error)
}

// RecordResolver maps a validated assertion to the caller's
// AuthorizationRecord.
type RecordResolver func(ctx context.Context, assertion *consoleauth.Assertion) (*consoleauth.AuthorizationRecord, error)

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	AuthScheme     string

	// Validator is required for assertion validation
	Validator AssertionValidator

	// RecordResolver is required to load the caller's record
	RecordResolver RecordResolver

	// MinimumRole specifies the minimum role level required (uses role hierarchy)
	MinimumRole consoleauth.AdminRole

	// AllowWaiting lets WAITING admins through; by default they are
	// rejected like any other unauthorized caller
	AllowWaiting bool
}

// New builds the assertion middleware.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := extractBearer(ctx, cfg.AuthScheme)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			assertion, err := cfg.Validator.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			record, err := cfg.RecordResolver(ctx.Context(), assertion)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := performAuthorizationChecks(record, cfg); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, record)
			ctx.SetContext(consoleauth.WithRecordContext(ctx.Context(), record))

			return cfg.SuccessHandler(ctx)
		}
	}
}

func performAuthorizationChecks(record *consoleauth.AuthorizationRecord, cfg Config) error {
	if record == nil {
		return consoleauth.ErrNotRegistered
	}

	switch record.Status {
	case consoleauth.StatusSuspended:
		return consoleauth.ErrAdminSuspended
	case consoleauth.StatusInactive:
		return consoleauth.ErrAdminInactive
	}

	if record.Pending() && !cfg.AllowWaiting {
		return authzError(consoleauth.ErrNoActiveSession, map[string]any{
			"reason": "admin is pending approval",
		})
	}

	if cfg.MinimumRole != "" && !record.Role.IsAtLeast(cfg.MinimumRole) {
		return authzError(consoleauth.ErrInvalidRole, map[string]any{
			"reason":       "minimum role not met",
			"minimum_role": cfg.MinimumRole,
		})
	}

	return nil
}

// authzError attaches metadata to a copy of the sentinel so the shared value
// never mutates; errors.Is still matches through the source chain.
func authzError(base *goerrors.Error, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(metadata)
}

func extractBearer(ctx router.Context, authScheme string) (string, error) {
	header := ctx.Header(router.HeaderAuthorization)
	if header == "" {
		return "", ErrAssertionMissingOrMalformed
	}

	if authScheme == "" {
		return header, nil
	}

	prefix := authScheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrAssertionMissingOrMalformed
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrAssertionMissingOrMalformed
	}

	return token, nil
}

// GetDefaultConfig normalizes the middleware configuration.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if err.Error() == ErrAssertionMissingOrMalformed.Error() {
				return c.Status(router.StatusBadRequest).SendString(ErrAssertionMissingOrMalformed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired assertion")
		}
	}

	if cfg.Validator == nil {
		panic("SESSION: assertion middleware configuration: Validator is required.")
	}

	if cfg.RecordResolver == nil {
		panic("SESSION: assertion middleware configuration: RecordResolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "admin"
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}
