package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// CallIDKey is the context key for call identifiers.
	CallIDKey contextKey = "call_id"

	// RouteKey is the context key for request targets.
	RouteKey contextKey = "route"
)

// WithCallID adds a call identifier to the context.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CallIDKey, id)
}

// GetCallID retrieves the call identifier from the context.
func GetCallID(ctx context.Context) string {
	if id, ok := ctx.Value(CallIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRoute adds a request target to the context.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

// GetRoute retrieves the request target from the context.
func GetRoute(ctx context.Context) string {
	if route, ok := ctx.Value(RouteKey).(string); ok {
		return route
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id := GetCallID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(CallIDKey), id))
	}
	if route := GetRoute(ctx); route != "" {
		attrs = append(attrs, slog.String(string(RouteKey), route))
	}
	return attrs
}
