// Package proxy streams compile output from the CLSI backend to clients.
//
// A proxied request goes through the same affinity routing as every other
// backend call: an explicit clsiserverid query parameter pins the server
// and bypasses the affinity store, otherwise the compile group and backend
// class are sent along with the affinity cookie when a server is known.
//
// # Streaming
//
// The upstream Content-Length and Content-Type are copied verbatim and the
// upstream status is written before the first body byte. Once the status
// line is out nothing else can be reported to the client, so failures after
// that point are only logged:
//
//	p := proxy.NewProxy(proxy.Config{Upstream: clsiClient, Metrics: collector})
//	_ = p.ProxyOutputFile(w, r, proxy.ProxyRequest{
//	    ProjectID: projectID,
//	    Action:    proxy.ActionOutputFile,
//	    Path:      compile.FileURL(projectID, userID, buildID, "output.pdf"),
//	    Limits:    *limits,
//	})
//
// # Failure Classification
//
// Classify sorts failures into client aborts (debug only), upstream
// non-2xx answers (status forwarded, body dropped), timeouts and everything
// else. Upstream failures on output-file and synctex actions are expected
// and are not logged.
//
// # Error Responses
//
// JSON handlers answer errors with the envelope in package types through
// HandleError and WriteErrorResponse.
//
// # Downloads
//
// ContentDisposition and SafeProjectName build the PDF download header.
// DownloadLimiter bounds full PDF downloads per client address.
package proxy
