// Package types defines the JSON error envelope returned by compilegate
// handlers.
//
// Failures that happen before any backend call, or that the backend reports
// in a way the client can act on, are answered with:
//
//	{"error": {"message": "invalid h parameter", "type": "invalid_request_error", "param": "h"}}
//
// Proxied output files are the exception: a failed upstream fetch is answered
// with a bare status and no body, so binary viewers never try to render an
// error document.
package types
