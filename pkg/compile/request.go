package compile

import (
	"net/url"
	"slices"

	"mercator-hq/compilegate/pkg/clsi"
)

// Compilers accepted in a compile request.
var Compilers = []string{"pdflatex", "latex", "xelatex", "lualatex"}

// checkModes are the accepted syntax check modes. Other values are dropped.
var checkModes = []string{"validate", "error", "silent"}

// Request is one compile request, from either transport.
type Request struct {
	ProjectID string

	// UserID is empty for anonymous visitors.
	UserID    string
	SessionID string

	// AnalyticsID buckets the requester for split tests and sampling.
	AnalyticsID string

	// Query carries auto_compile, file_line_errors and enable_pdf_caching.
	Query url.Values
	Body  Body

	// Referer is the editor page URL. Its query string overrides split-test
	// assignments.
	Referer string
}

// Body is the JSON compile request body.
type Body struct {
	CompileID                  string           `json:"compileId,omitempty"`
	RootDocID                  string           `json:"rootDoc_id,omitempty"`
	SettingsOverride           SettingsOverride `json:"settingsOverride"`
	Compiler                   string           `json:"compiler,omitempty"`
	Draft                      bool             `json:"draft,omitempty"`
	Check                      string           `json:"check,omitempty"`
	StopOnFirstError           bool             `json:"stopOnFirstError,omitempty"`
	IncrementalCompilesEnabled bool             `json:"incrementalCompilesEnabled,omitempty"`
	EditorID                   string           `json:"editorId,omitempty"`
}

// SettingsOverride is the legacy location of rootDoc_id.
type SettingsOverride struct {
	RootDocID string `json:"rootDoc_id,omitempty"`
}

// normalizeOptions derives backend options from the request. Routing,
// timeout and caching are filled in by the caller.
func normalizeOptions(req *Request) (clsi.CompileOptions, error) {
	if req.ProjectID == "" {
		return clsi.CompileOptions{}, &ValidationError{Field: "project_id", Reason: "required"}
	}

	body := req.Body
	opts := clsi.CompileOptions{
		IsAutoCompile:              req.Query.Get("auto_compile") != "",
		FileLineErrors:             req.Query.Get("file_line_errors") != "",
		StopOnFirstError:           body.StopOnFirstError,
		EditorID:                   body.EditorID,
		Draft:                      body.Draft,
		IncrementalCompilesEnabled: body.IncrementalCompilesEnabled,
	}

	opts.RootDocID = body.RootDocID
	if opts.RootDocID == "" {
		opts.RootDocID = body.SettingsOverride.RootDocID
	}

	if body.Compiler != "" {
		if !slices.Contains(Compilers, body.Compiler) {
			return clsi.CompileOptions{}, &ValidationError{Field: "compiler", Reason: "unsupported compiler " + body.Compiler}
		}
		opts.Compiler = body.Compiler
	}
	if slices.Contains(checkModes, body.Check) {
		opts.Check = body.Check
	}
	return opts, nil
}

// splitTestOverrides returns the query of the editor page, falling back to
// the request's own query when no usable referer is present.
func splitTestOverrides(req *Request) url.Values {
	if req.Referer != "" {
		if u, err := url.Parse(req.Referer); err == nil {
			return u.Query()
		}
	}
	if req.Query == nil {
		return url.Values{}
	}
	return req.Query
}
