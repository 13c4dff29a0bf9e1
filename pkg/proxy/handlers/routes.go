package handlers

import (
	"net/http"
	"time"

	"mercator-hq/compilegate/pkg/proxy/middleware"
)

// Register mounts every compile and output route on mux. Short backend
// calls are bounded by shortTimeout; compiles and file streams are not.
func (h *Handlers) Register(mux *http.ServeMux, shortTimeout time.Duration) {
	short := func(f http.HandlerFunc) http.Handler {
		return middleware.TimeoutMiddleware(shortTimeout)(h.RequireRead(f))
	}
	read := func(f http.HandlerFunc) http.Handler {
		return h.RequireRead(f)
	}

	mux.Handle("POST /project/{project_id}/compile", read(h.Compile))
	mux.Handle("POST /project/{project_id}/compile/stop", short(h.StopCompile))
	mux.Handle("DELETE /project/{project_id}/output", short(h.DeleteAuxFiles))
	mux.Handle("GET /project/{project_id}/wordcount", short(h.WordCount))
	mux.Handle("GET /project/{project_id}/sync/code", short(h.SyncCode))
	mux.Handle("GET /project/{project_id}/sync/pdf", short(h.SyncPDF))

	mux.Handle("GET /project/{project_id}/output/output.pdf", read(h.DownloadPDF))
	mux.Handle("GET /project/{project_id}/build/{build_id}/output/output.pdf", read(h.DownloadPDF))
	mux.Handle("GET /project/{project_id}/download/pdf", read(h.CompileAndDownloadPDF))
	mux.Handle("GET /project/{project_id}/build/{build_id}/output/{file...}", read(h.OutputFile))
	mux.Handle("GET /project/{project_id}/user/{user_id}/build/{build_id}/output/{file...}", read(h.OutputFile))

	if h.submissions != nil {
		mux.HandleFunc("POST /compile/submission/{submission_id}", h.CompileSubmission)
		mux.HandleFunc("GET /compile/submission/{submission_id}/build/{build_id}/output/{file...}", h.SubmissionOutputFile)
	}
}
