// Package clsi is the HTTP client for the CLSI compile backend.
//
// Every call is a single request to
//
//	{clsi.url}/project/{projectID}[/user/{userID}]/{op}
//
// carrying the compileGroup and compileBackendClass query parameters and,
// when the affinity store knows one, the server pinning cookie. Responses
// refresh the affinity record through the shared affinity.Selector.
//
// Full compiles run detached from the inbound request: a caller that goes
// away does not abort a compile that the backend has already started.
//
// Failures are typed: RequestFailedError for non-2xx answers (a 404 also
// matches ErrNotFound), TimeoutError when a deadline fires and
// TransportError for connection failures. A backend answer of status
// "unavailable" is a normal Result.
package clsi
