package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/proxy"
)

// DownloadPDF handles GET /project/{project_id}[/build/{build_id}]/output/output.pdf.
// The disposition is attachment when popupDownload is set and inline
// otherwise. A client over its download rate gets a bare 500.
func (h *Handlers) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	name := projectID
	if h.projects != nil {
		p, err := h.projects.GetProject(ctx, projectID)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		name = p.Name
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", proxy.ContentDisposition(r.URL.Query().Get("popupDownload") != "", name))

	if addr := proxy.ClientIP(r); !h.limiter.Allow(addr) {
		h.metrics.RecordPDFDownload("rate_limited")
		h.logger.DebugContext(ctx, "rate limit hit downloading pdf", "project_id", projectID, "ip", addr)
		proxy.WriteStatus(w, http.StatusInternalServerError)
		return
	}
	h.metrics.RecordPDFDownload("allowed")

	limits, err := h.limits(ctx, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	userID := h.compileUserID(ctx)
	_ = h.streamer.ProxyOutputFile(w, r, proxy.ProxyRequest{
		ProjectID: projectID,
		UserID:    userID,
		Action:    proxy.ActionOutputFile,
		Path:      compile.FileURL(projectID, userID, r.PathValue("build_id"), "output.pdf"),
		Limits:    limits,
	})
}

// CompileAndDownloadPDF handles GET /project/{project_id}/download/pdf for
// templates. It runs an anonymous compile and streams the resulting
// output.pdf. A failed compile, or one without a PDF, gets a bare 500.
func (h *Handlers) CompileAndDownloadPDF(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)
	h.extendWriteDeadline(w)

	res, err := h.compiler.CompileProject(ctx, compile.Request{ProjectID: projectID}, compile.Hooks{})
	if err != nil {
		h.logger.ErrorContext(ctx, "template compile failed", "error", err, "project_id", projectID)
		proxy.WriteStatus(w, http.StatusInternalServerError)
		return
	}
	pdf := findOutputPDF(res.Result)
	if pdf == nil {
		h.logger.WarnContext(ctx, "template compile produced no pdf", "project_id", projectID)
		proxy.WriteStatus(w, http.StatusInternalServerError)
		return
	}

	limits, err := h.limits(ctx, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	_ = h.streamer.ProxyOutputFile(w, r, proxy.ProxyRequest{
		ProjectID: projectID,
		Action:    proxy.ActionOutputFile,
		Path:      compile.FileURL(projectID, "", pdf.Build, pdf.Path),
		Limits:    limits,
	})
}

func findOutputPDF(res *compile.Result) *clsi.OutputFile {
	if res == nil {
		return nil
	}
	for i := range res.OutputFiles {
		if res.OutputFiles[i].Path == "output.pdf" {
			return &res.OutputFiles[i]
		}
	}
	return nil
}

// OutputFile handles GET /project/{project_id}[/user/{user_id}]/build/{build_id}/output/{file...}.
// The user segment of the path is not trusted: files are looked up for the
// compile user of the session.
func (h *Handlers) OutputFile(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	limits, err := h.limits(ctx, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	userID := h.compileUserID(ctx)
	_ = h.streamer.ProxyOutputFile(w, r, proxy.ProxyRequest{
		ProjectID: projectID,
		UserID:    userID,
		Action:    proxy.ActionOutputFile,
		Path:      compile.FileURL(projectID, userID, r.PathValue("build_id"), r.PathValue("file")),
		Limits:    limits,
	})
}

// SubmissionOutputFile handles
// GET /compile/submission/{submission_id}/build/{build_id}/output/{file...}.
// The compile group comes from the body, then the query, then the default.
func (h *Handlers) SubmissionOutputFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := r.PathValue("submission_id")

	group := submissionGroupFromBody(r)
	if group == "" {
		group = r.URL.Query().Get("compileGroup")
	}
	route, err := h.submissions.RouteFor(group)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	_ = h.streamer.ProxyOutputFile(w, r, proxy.ProxyRequest{
		ProjectID: submissionID,
		Action:    proxy.ActionOutputFile,
		Path:      compile.FileURL(submissionID, "", r.PathValue("build_id"), r.PathValue("file")),
		Limits: project.Limits{
			CompileGroup: route.CompileGroup,
			BackendClass: route.BackendClass,
		},
	})
}

// submissionGroupFromBody reads compileGroup from a JSON request body, if
// there is one. Malformed bodies are ignored.
func submissionGroupFromBody(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var body struct {
		CompileGroup string `json:"compileGroup"`
	}
	err := json.NewDecoder(io.LimitReader(r.Body, proxy.MaxRequestBodySize)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return body.CompileGroup
}
