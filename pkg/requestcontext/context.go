// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here for values that are
// typically set by middleware but consumed by services. Keeping this package
// free of net/http dependencies lets services import only what they need.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "callwatch/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	actorUserIDKey struct{}
	requestTimeKey struct{}
)

// RequestID retrieves the correlation id set by middleware, or "" if unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ActorUserID retrieves the acting user for the request, if authenticated
// upstream. The engine itself performs no auth; the host application sets
// this before calling in.
func ActorUserID(ctx context.Context) id.UserID {
	if v, ok := ctx.Value(actorUserIDKey{}).(id.UserID); ok {
		return v
	}
	return id.UserID{}
}

// WithActorUserID injects the acting user into the context.
func WithActorUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, actorUserIDKey{}, userID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, schedulers, tests that don't
// inject one). All writes within a single request share one timestamp.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and batch operations that need one consistent "now".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
