package consoleauth

import (
	"context"

	"github.com/goliatone/go-router"
)

var adminCtxKey = &contextKey{"admin"}
var recordCtxKey = &contextKey{"record"}

type contextKey struct {
	name string
}

// WithContext sets the Admin in the given context
func WithContext(r context.Context, admin *Admin) context.Context {
	return context.WithValue(r, adminCtxKey, admin)
}

// FromContext finds the admin from the context.
func FromContext(ctx context.Context) (*Admin, bool) {
	raw, ok := ctx.Value(adminCtxKey).(*Admin)
	return raw, ok
}

// WithRecordContext sets the AuthorizationRecord in the given context
func WithRecordContext(r context.Context, record *AuthorizationRecord) context.Context {
	return context.WithValue(r, recordCtxKey, record)
}

// RecordFromContext extracts the AuthorizationRecord from the standard context
func RecordFromContext(ctx context.Context) (*AuthorizationRecord, bool) {
	raw, ok := ctx.Value(recordCtxKey).(*AuthorizationRecord)
	return raw, ok
}

// RouterRecord extracts the AuthorizationRecord from the router context
func RouterRecord(ctx router.Context, key string) (*AuthorizationRecord, bool) {
	if key == "" {
		key = "admin" // default key used by the assertion middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	record, ok := raw.(*AuthorizationRecord)
	return record, ok
}
