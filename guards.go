package consoleauth

import (
	"net/http"

	"github.com/goliatone/go-router"
)

const (
	// LoginPath is where unauthenticated admins are sent.
	LoginPath = "/login"
	// ApprovalPendingPath is the parking page for WAITING admins.
	ApprovalPendingPath = "/approval-pending"
	// HomePath is the console landing page.
	HomePath = "/"
)

// GuardDecision is the outcome of evaluating a route guard: either the
// request proceeds, or it is redirected.
type GuardDecision struct {
	Allow      bool
	RedirectTo string
}

// ProtectedAreaGuard evaluates access to the console's protected surface.
// No record redirects to the login page; a WAITING record redirects to the
// approval parking page. Requests already at their redirect target are
// allowed through so guards never loop.
func ProtectedAreaGuard(record *AuthorizationRecord, path string) GuardDecision {
	if record == nil {
		if path == LoginPath {
			return GuardDecision{Allow: true}
		}
		return GuardDecision{RedirectTo: LoginPath}
	}

	if record.Pending() {
		if path == ApprovalPendingPath {
			return GuardDecision{Allow: true}
		}
		return GuardDecision{RedirectTo: ApprovalPendingPath}
	}

	return GuardDecision{Allow: true}
}

// PublicAreaGuard evaluates access to public pages (login and the approval
// parking page). A fully authorized admin has no business there and is sent
// home; a WAITING admin is kept on the approval page; everyone else passes.
func PublicAreaGuard(record *AuthorizationRecord, path string) GuardDecision {
	if record == nil {
		return GuardDecision{Allow: true}
	}

	if record.Pending() {
		if path == ApprovalPendingPath {
			return GuardDecision{Allow: true}
		}
		return GuardDecision{RedirectTo: ApprovalPendingPath}
	}

	if path == HomePath {
		return GuardDecision{Allow: true}
	}
	return GuardDecision{RedirectTo: HomePath}
}

// ProtectedRoute guards the console's protected surface with the store's
// current session.
func ProtectedRoute(store *SessionStore) router.MiddlewareFunc {
	return guardMiddleware(store, ProtectedAreaGuard)
}

// PublicRoute guards the public surface (login, approval parking page).
func PublicRoute(store *SessionStore) router.MiddlewareFunc {
	return guardMiddleware(store, PublicAreaGuard)
}

func guardMiddleware(store *SessionStore, guard func(*AuthorizationRecord, string) GuardDecision) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			decision := guard(store.Current(), ctx.Path())
			if decision.Allow {
				return hf(ctx)
			}
			return ctx.Redirect(decision.RedirectTo, http.StatusSeeOther)
		}
	}
}
