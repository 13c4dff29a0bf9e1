// Package handlers serves the compile and output routes of compilegate.
//
// Project routes read the project id from the {project_id} path value and
// the caller from the session loaded by middleware.SessionMiddleware:
//
//	POST   /project/{project_id}/compile
//	POST   /project/{project_id}/compile/stop
//	DELETE /project/{project_id}/output
//	GET    /project/{project_id}/wordcount
//	GET    /project/{project_id}/sync/code
//	GET    /project/{project_id}/sync/pdf
//	GET    /project/{project_id}/output/output.pdf
//	GET    /project/{project_id}/build/{build_id}/output/output.pdf
//	GET    /project/{project_id}/build/{build_id}/output/{file...}
//	GET    /project/{project_id}/user/{user_id}/build/{build_id}/output/{file...}
//
// Public API submissions are keyed by submission id and carry no session:
//
//	POST /compile/submission/{submission_id}
//	GET  /compile/submission/{submission_id}/build/{build_id}/output/{file...}
//
// Compile responses are held open until the backend answers. While they
// wait, 102 Processing interim responses keep proxies from timing the
// request out.
//
// Output files are streamed by the proxy package. A failed fetch is answered
// with a bare status; everything else fails with the JSON envelope of the
// types package.
package handlers
