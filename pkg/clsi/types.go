package clsi

import (
	"encoding/json"
	"time"

	"mercator-hq/compilegate/pkg/affinity"
)

// Compile statuses reported by the backend.
const (
	StatusSuccess     = "success"
	StatusFailure     = "failure"
	StatusUnavailable = "unavailable"
	StatusTerminated  = "terminated"
	StatusTimedOut    = "timedout"
)

// Route selects which backend cluster and server a call goes to.
type Route struct {
	CompileGroup affinity.CompileGroup
	BackendClass affinity.BackendClass

	// ServerID pins the call to one server, bypassing the affinity store.
	ServerID string
}

// OutputFile describes one build artifact.
type OutputFile struct {
	Path      string          `json:"path"`
	URL       string          `json:"url"`
	Type      string          `json:"type"`
	Build     string          `json:"build,omitempty"`
	Size      int64           `json:"size,omitempty"`
	ContentID string          `json:"contentId,omitempty"`
	Ranges    json.RawMessage `json:"ranges,omitempty"`
}

// Result is a normalized compile outcome. Status "unavailable" is a valid
// result, not an error.
type Result struct {
	Status             string             `json:"status"`
	OutputFiles        []OutputFile       `json:"outputFiles"`
	ClsiServerID       string             `json:"clsiServerId,omitempty"`
	ClsiCacheShard     string             `json:"clsiCacheShard,omitempty"`
	ValidationProblems json.RawMessage    `json:"validationProblems,omitempty"`
	Stats              map[string]any     `json:"stats,omitempty"`
	Timings            map[string]float64 `json:"timings,omitempty"`
	OutputURLPrefix    string             `json:"outputUrlPrefix,omitempty"`
	BuildID            string             `json:"buildId,omitempty"`
	AdminHint          string             `json:"adminHint,omitempty"`
	RestoredClsiCache  bool               `json:"restoredClsiCache,omitempty"`
}

// CompileOptions are the normalized compile parameters sent to the backend.
type CompileOptions struct {
	Route Route

	// Timeout is the per-compile limit handed to the backend.
	Timeout time.Duration

	RootDocID                  string
	Compiler                   string
	Draft                      bool
	Check                      string
	StopOnFirstError           bool
	IncrementalCompilesEnabled bool
	IsAutoCompile              bool
	FileLineErrors             bool
	EditorID                   string
	EnablePdfCaching           bool
	PdfCachingMinChunkSize     int
	CompileFromClsiCache       bool
	PopulateClsiCache          bool
}

// SubmissionRequest is an anonymous compile of externally supplied resources.
type SubmissionRequest struct {
	Options          CompileOptions
	RootResourcePath string
	Resources        json.RawMessage
}

// SyncFromCodeParams locate a source position for code-to-PDF sync. File
// is matched as a label by SyncTeX and is forwarded as the client sent it.
type SyncFromCodeParams struct {
	File     string
	Line     int
	Column   int
	EditorID string
	BuildID  string
}

// SyncFromPDFParams locate a PDF position for PDF-to-code sync. H and V
// are the validated decimal strings from the client, forwarded verbatim.
type SyncFromPDFParams struct {
	Page     int
	H        string
	V        string
	EditorID string
	BuildID  string
}

type compileRequestBody struct {
	Compile compileRequest `json:"compile"`
}

type compileRequest struct {
	Options          compileRequestOptions `json:"options"`
	RootDocID        string                `json:"rootDoc_id,omitempty"`
	RootResourcePath string                `json:"rootResourcePath,omitempty"`
	Resources        json.RawMessage       `json:"resources,omitempty"`
}

type compileRequestOptions struct {
	Compiler                   string `json:"compiler,omitempty"`
	Timeout                    int    `json:"timeout,omitempty"`
	Draft                      bool   `json:"draft"`
	Check                      string `json:"check,omitempty"`
	StopOnFirstError           bool   `json:"stopOnFirstError"`
	IncrementalCompilesEnabled bool   `json:"incrementalCompilesEnabled"`
	IsAutoCompile              bool   `json:"isAutoCompile"`
	FileLineErrors             bool   `json:"fileLineErrors"`
	EditorID                   string `json:"editorId,omitempty"`
	EnablePdfCaching           bool   `json:"enablePdfCaching"`
	PdfCachingMinChunkSize     int    `json:"pdfCachingMinChunkSize,omitempty"`
	CompileGroup               string `json:"compileGroup"`
	CompileBackendClass        string `json:"compileBackendClass"`
	CompileFromClsiCache       bool   `json:"compileFromClsiCache,omitempty"`
	PopulateClsiCache          bool   `json:"populateClsiCache,omitempty"`
}

type compileResponseBody struct {
	Compile struct {
		Status             string             `json:"status"`
		Error              string             `json:"error,omitempty"`
		OutputFiles        []OutputFile       `json:"outputFiles"`
		Stats              map[string]any     `json:"stats"`
		Timings            map[string]float64 `json:"timings"`
		OutputURLPrefix    string             `json:"outputUrlPrefix"`
		BuildID            string             `json:"buildId"`
		ClsiServerID       string             `json:"clsiServerId"`
		ClsiCacheShard     string             `json:"clsiCacheShard"`
		ValidationProblems json.RawMessage    `json:"validationProblems"`
		AdminHint          string             `json:"adminHint"`
		RestoredClsiCache  bool               `json:"restoredClsiCache"`
	} `json:"compile"`
}

func newCompileRequest(opts CompileOptions) compileRequestOptions {
	return compileRequestOptions{
		Compiler:                   opts.Compiler,
		Timeout:                    int(opts.Timeout / time.Second),
		Draft:                      opts.Draft,
		Check:                      opts.Check,
		StopOnFirstError:           opts.StopOnFirstError,
		IncrementalCompilesEnabled: opts.IncrementalCompilesEnabled,
		IsAutoCompile:              opts.IsAutoCompile,
		FileLineErrors:             opts.FileLineErrors,
		EditorID:                   opts.EditorID,
		EnablePdfCaching:           opts.EnablePdfCaching,
		PdfCachingMinChunkSize:     opts.PdfCachingMinChunkSize,
		CompileGroup:               string(opts.Route.CompileGroup),
		CompileBackendClass:        string(opts.Route.BackendClass),
		CompileFromClsiCache:       opts.CompileFromClsiCache,
		PopulateClsiCache:          opts.PopulateClsiCache,
	}
}
