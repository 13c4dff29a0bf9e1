package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/proxy"
	"mercator-hq/compilegate/pkg/proxy/types"
)

var (
	digitsRe     = regexp.MustCompile(`^\d+$`)
	coordinateRe = regexp.MustCompile(`^-?\d+\.\d+$`)
	idRe         = regexp.MustCompile(`^[a-f0-9-]+$`)
)

// SyncCode handles GET /project/{project_id}/sync/code, mapping a source
// position to PDF coordinates.
func (h *Handlers) SyncCode(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	params, err := parseSyncFromCode(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.sync(ctx, w, r, projectID, func(ctx context.Context, userID string, route clsi.Route) ([]byte, error) {
		return h.backend.SyncFromCode(ctx, projectID, userID, route, params)
	})
}

// SyncPDF handles GET /project/{project_id}/sync/pdf, mapping PDF
// coordinates to a source position.
func (h *Handlers) SyncPDF(w http.ResponseWriter, r *http.Request) {
	ctx, projectID := projectContext(r)

	params, err := parseSyncFromPDF(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.sync(ctx, w, r, projectID, func(ctx context.Context, userID string, route clsi.Route) ([]byte, error) {
		return h.backend.SyncFromPDF(ctx, projectID, userID, route, params)
	})
}

func (h *Handlers) sync(ctx context.Context, w http.ResponseWriter, r *http.Request, projectID string,
	call func(ctx context.Context, userID string, route clsi.Route) ([]byte, error)) {
	route, err := h.route(ctx, r, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, err := call(ctx, h.compileUserID(ctx), route)
	switch {
	case errors.Is(err, clsi.ErrNotFound):
		proxy.WriteStatus(w, http.StatusNotFound)
		return
	case err != nil:
		h.writeError(ctx, w, err)
		return
	}
	h.writeRaw(ctx, w, body)
}

func parseSyncFromCode(q url.Values) (clsi.SyncFromCodeParams, error) {
	var p clsi.SyncFromCodeParams

	file := q.Get("file")
	if err := validFile(file); err != nil {
		return p, err
	}
	line, err := validInt(q, "line")
	if err != nil {
		return p, err
	}
	column, err := validInt(q, "column")
	if err != nil {
		return p, err
	}
	editorID, buildID, err := validIDs(q)
	if err != nil {
		return p, err
	}
	return clsi.SyncFromCodeParams{
		File:     file,
		Line:     line,
		Column:   column,
		EditorID: editorID,
		BuildID:  buildID,
	}, nil
}

func parseSyncFromPDF(q url.Values) (clsi.SyncFromPDFParams, error) {
	var p clsi.SyncFromPDFParams

	page, err := validInt(q, "page")
	if err != nil {
		return p, err
	}
	hc, err := validCoordinate(q, "h")
	if err != nil {
		return p, err
	}
	vc, err := validCoordinate(q, "v")
	if err != nil {
		return p, err
	}
	editorID, buildID, err := validIDs(q)
	if err != nil {
		return p, err
	}
	return clsi.SyncFromPDFParams{
		Page:     page,
		H:        hc,
		V:        vc,
		EditorID: editorID,
		BuildID:  buildID,
	}, nil
}

// validFile accepts relative paths that stay inside the project. A single
// "/./" is collapsed for the check only; the caller keeps the original.
func validFile(file string) error {
	if file == "" {
		return invalidParam("file", types.CodeMissingField)
	}
	clean := strings.Replace(file, "/./", "/", 1)
	if path.Join("/", clean) != "/"+clean {
		return invalidParam("file", types.CodeInvalidValue)
	}
	return nil
}

func validInt(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if !digitsRe.MatchString(v) {
		return 0, invalidParam(name, codeFor(v))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidParam(name, types.CodeInvalidValue)
	}
	return n, nil
}

func validCoordinate(q url.Values, name string) (string, error) {
	v := q.Get(name)
	if !coordinateRe.MatchString(v) {
		return "", invalidParam(name, codeFor(v))
	}
	return v, nil
}

func validIDs(q url.Values) (editorID, buildID string, err error) {
	editorID = q.Get("editorId")
	if !idRe.MatchString(editorID) {
		return "", "", invalidParam("editorId", codeFor(editorID))
	}
	buildID = q.Get("buildId")
	if !idRe.MatchString(buildID) {
		return "", "", invalidParam("buildId", codeFor(buildID))
	}
	return editorID, buildID, nil
}

func codeFor(v string) string {
	if v == "" {
		return types.CodeMissingField
	}
	return types.CodeInvalidValue
}

func invalidParam(name, code string) error {
	return &proxy.RequestError{
		Message: "invalid " + name + " parameter",
		Code:    code,
		Param:   name,
	}
}
