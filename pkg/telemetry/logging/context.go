package logging

import (
	"context"
	"log/slog"

	"mercator-hq/compilegate/pkg/telemetry/tracing"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ProjectIDKey is the context key for project IDs.
	ProjectIDKey contextKey = "project_id"

	// UserIDKey is the context key for user IDs.
	UserIDKey contextKey = "user_id"

	// CompileIDKey is the context key for client compile IDs.
	CompileIDKey contextKey = "compile_id"
)

var contextKeys = []contextKey{RequestIDKey, ProjectIDKey, UserIDKey, CompileIDKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

// WithProjectID adds a project ID to the context.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// GetProjectID retrieves the project ID from the context.
func GetProjectID(ctx context.Context) string {
	return get(ctx, ProjectIDKey)
}

// WithUserID adds a user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user ID from the context.
func GetUserID(ctx context.Context) string {
	return get(ctx, UserIDKey)
}

// WithCompileID adds a compile ID to the context.
func WithCompileID(ctx context.Context, compileID string) context.Context {
	return context.WithValue(ctx, CompileIDKey, compileID)
}

// GetCompileID retrieves the compile ID from the context.
func GetCompileID(ctx context.Context) string {
	return get(ctx, CompileIDKey)
}

func get(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, k := range contextKeys {
		if v := get(ctx, k); v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	if id := tracing.TraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	return attrs
}
