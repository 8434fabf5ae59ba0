// Package consoleauth implements the session and authorization lifecycle for
// an administration console backed by a federated identity provider.
//
// Session lifecycle:
//   - SessionVerifier exchanges an identity assertion for an
//     AuthorizationRecord against the console API, registering first-time
//     admins transparently before retrying the verification once.
//   - SessionStore centralizes the session state graph (INITIALIZING,
//     UNAUTHENTICATED, PENDING_APPROVAL, AUTHENTICATED), the durable idle
//     window that bounds every authenticated session, and the provider
//     subscription that keeps local state honest when the upstream identity
//     disappears.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the SessionStore
//     to describe login, logout, idle expiry, and role change events. Sinks
//     run best-effort (errors are logged) so you can forward to a database or
//     queue without blocking session handling.
//
// Route guards:
//   - ProtectedAreaGuard and PublicAreaGuard translate the current
//     AuthorizationRecord into allow/redirect decisions; ProtectedRoute and
//     PublicRoute wrap them as router middleware for server-rendered
//     surfaces.
package consoleauth
