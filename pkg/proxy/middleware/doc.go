// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server wraps the route table like this:
//
//	handler = Recovery(RequestID(Logging(CORS(Session(mux)))))
//
// Recovery is outermost so a panic anywhere becomes a 500. RequestID runs
// before Logging so the completion record carries the request id.
// TimeoutMiddleware is applied per route, only to short backend calls;
// compile and download routes are held open longer.
//
// # Middleware Types
//
// Request tracking:
//   - RequestIDMiddleware: UUID request id in the context and the X-Request-ID header
//   - LoggingMiddleware: method, path, status and latency per request
//
// Sessions:
//   - SessionMiddleware: loads the signed session cookie into the context;
//     GetSession and GetSessionID read it back
//
// Security and resilience:
//   - CORSMiddleware: CORS headers from the server.cors settings
//   - RecoveryMiddleware: recover from panics, return a JSON 500
//   - TimeoutMiddleware: bound the request context
//
// # Logging
//
// LoggingMiddleware writes one record per request:
//
//	{
//	  "time": "2026-03-02T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/project/5f1e.../compile",
//	  "status": 200,
//	  "latency_ms": 8250,
//	  "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	}
//
// Its response writer passes 102 Processing interim headers through
// without treating them as the final status, and supports Flush and Hijack
// so streamed downloads and WebSocket upgrades work behind it.
//
// # CORS
//
// CORS configuration is loaded from the server section:
//
//	server:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["https://editor.example.com"]
//	    allow_credentials: true
//
// With credentials allowed, the request origin is echoed instead of "*"
// so browsers send the session cookie.
package middleware
