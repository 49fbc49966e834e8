// Package authctx carries the security scope of a call: which tenant and principal
// the operation acts for, and who is really driving it when support staff impersonate.
// The scope is passed as an explicit argument to every engine call so the boundary is
// auditable and testable without an HTTP stack; context helpers exist for middleware
// that has nothing but a context to hang it on.
package authctx

import (
	"context"
	"errors"
)

// ErrMissingScope is returned when a scope has no tenant or no principal.
var ErrMissingScope = errors.New("authctx: tenant and user are required")

// Scope identifies the tenant and principal an engine call acts for.
// ActorID is the impersonating staff user when support acts on behalf of UserID;
// empty otherwise.
type Scope struct {
	TenantID string
	UserID   string
	ActorID  string
}

// Validate reports whether the scope names both a tenant and a principal.
func (s Scope) Validate() error {
	if s.TenantID == "" || s.UserID == "" {
		return ErrMissingScope
	}
	return nil
}

// Actor returns the id that should be recorded as the acting party:
// the impersonator when present, otherwise the principal itself.
func (s Scope) Actor() string {
	if s.ActorID != "" {
		return s.ActorID
	}
	return s.UserID
}

type contextKey struct{ name string }

var scopeKey = contextKey{"scope"}

// WithScope returns a context carrying the scope. Middleware sets it after
// validating the access token; handlers read it via FromContext.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext returns the scope from context and true if set; otherwise a zero Scope and false.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}
