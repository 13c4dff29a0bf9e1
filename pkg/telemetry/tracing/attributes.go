package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys in the compilegate namespace.
const (
	AttrProjectID    = "compilegate.project_id"
	AttrUserID       = "compilegate.user_id"
	AttrCompileID    = "compilegate.compile_id"
	AttrCompileGroup = "compilegate.compile_group"
	AttrBackendClass = "compilegate.backend_class"
	AttrServerID     = "compilegate.clsi_server_id"
	AttrStatus       = "compilegate.compile_status"
	AttrAction       = "compilegate.proxy_action"
	AttrAutoCompile  = "compilegate.auto_compile"
)

// SetCompileAttributes records which project and cluster a compile targets.
// Empty values are skipped.
func SetCompileAttributes(span trace.Span, projectID, userID, compileGroup, backendClass string) {
	attrs := make([]attribute.KeyValue, 0, 4)
	for _, kv := range []struct{ k, v string }{
		{AttrProjectID, projectID},
		{AttrUserID, userID},
		{AttrCompileGroup, compileGroup},
		{AttrBackendClass, backendClass},
	} {
		if kv.v != "" {
			attrs = append(attrs, attribute.String(kv.k, kv.v))
		}
	}
	span.SetAttributes(attrs...)
}

// SetCompileResult records the outcome of a compile.
func SetCompileResult(span trace.Span, status, serverID string) {
	span.SetAttributes(attribute.String(AttrStatus, status))
	if serverID != "" {
		span.SetAttributes(attribute.String(AttrServerID, serverID))
	}
}

// SetProxyAttributes records a proxied backend action.
func SetProxyAttributes(span trace.Span, action, projectID string) {
	span.SetAttributes(
		attribute.String(AttrAction, action),
		attribute.String(AttrProjectID, projectID),
	)
}

// SetHTTPAttributes records the inbound request line.
func SetHTTPAttributes(span trace.Span, method, path string) {
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.target", path),
	)
}

// SetHTTPStatus records the response status.
func SetHTTPStatus(span trace.Span, statusCode int) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
}
