package handlers

import (
	"net/http"

	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/proxy"
)

// CompileSubmission handles POST /compile/submission/{submission_id}, the
// public API compile of posted resources. It is held open like Compile.
func (h *Handlers) CompileSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := r.PathValue("submission_id")

	var body compile.SubmissionBody
	if err := proxy.ParseJSONBody(r, &body); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.extendWriteDeadline(w)

	sink := heartbeat.NewHTTPSink(w, r)
	res, err := h.submissions.CompileSubmission(ctx, submissionID, body, compile.Hooks{Heartbeat: sink})
	sink.Finish()
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, res)
}
