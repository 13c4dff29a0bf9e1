package handlers

import (
	"net/http"

	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/proxy"
	"mercator-hq/compilegate/pkg/proxy/middleware"
	"mercator-hq/compilegate/pkg/telemetry/logging"
)

// Compile handles POST /project/{project_id}/compile. The response is held
// open with 102 Processing interim headers until the compile finishes; the
// result is also fanned out to the project's open sockets.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	var body compile.Body
	if err := proxy.ParseJSONBody(r, &body); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if body.CompileID != "" {
		ctx = logging.WithCompileID(ctx, body.CompileID)
	}
	h.extendWriteDeadline(w)

	sess := middleware.GetSession(ctx)
	req := compile.Request{
		ProjectID:   projectID,
		UserID:      sess.UserID(),
		SessionID:   middleware.GetSessionID(ctx),
		AnalyticsID: sess.AnalyticsIDOrUser(),
		Query:       r.URL.Query(),
		Body:        body,
		Referer:     r.Referer(),
	}

	sink := heartbeat.NewHTTPSink(w, r)
	res, err := h.compiler.CompileProject(ctx, req, compile.Hooks{Heartbeat: sink})
	sink.Finish()
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if h.fanout != nil {
		h.fanout.EmitCompileResult(projectID, res.UserID, res.SessionID, res)
	}
	h.writeJSON(ctx, w, res.Result)
}

// StopCompile handles POST /project/{project_id}/compile/stop.
func (h *Handlers) StopCompile(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	route, err := h.route(ctx, r, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	// Stop targets the logged-in user's compile even when per-user
	// compiles are disabled.
	if err := h.backend.StopCompile(ctx, projectID, loggedInUserID(ctx), route); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	proxy.WriteStatus(w, http.StatusOK)
}

// DeleteAuxFiles handles DELETE /project/{project_id}/output.
func (h *Handlers) DeleteAuxFiles(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	route, err := h.route(ctx, r, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.backend.DeleteAuxFiles(ctx, projectID, h.compileUserID(ctx), route); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	proxy.WriteStatus(w, http.StatusOK)
}

// WordCount handles GET /project/{project_id}/wordcount. An empty file
// counts the root document.
func (h *Handlers) WordCount(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	route, err := h.route(ctx, r, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, err := h.backend.WordCount(ctx, projectID, h.compileUserID(ctx), r.URL.Query().Get("file"), route)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeRaw(ctx, w, body)
}
