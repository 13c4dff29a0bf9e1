package compilews

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"mercator-hq/compilegate/pkg/compile"
)

// Frame types.
const (
	TypeCompile       = "compile"
	TypeHeartbeat     = "heartbeat"
	TypeCompileStatus = "compile-status"
	TypeCompileResult = "compile-result"
	TypeCompileError  = "compile-error"
)

// Compile states reported in compile-status frames.
const (
	StateStarted = "started"
	StateRunning = "running"
)

// CompileFrame asks the server to compile. ProjectID may be omitted; when
// present it must equal the project the connection is bound to.
type CompileFrame struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	CompileID string          `json:"compileId"`
	Body      json.RawMessage `json:"body,omitempty"`
	Query     map[string]any  `json:"query,omitempty"`
	Referer   string          `json:"referer,omitempty"`
}

// HeartbeatFrame is the liveness frame sent to every open connection.
type HeartbeatFrame struct {
	Type string `json:"type"`
}

// StatusFrame reports a compile still in flight.
type StatusFrame struct {
	Type      string `json:"type"`
	CompileID string `json:"compileId"`
	ProjectID string `json:"projectId"`
	State     string `json:"state"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// ResultFrame carries a finished compile. UserID is null for anonymous
// compiles.
type ResultFrame struct {
	Type      string          `json:"type"`
	CompileID string          `json:"compileId"`
	ProjectID string          `json:"projectId"`
	UserID    *string         `json:"userId"`
	Result    *compile.Result `json:"result"`
}

// ErrorFrame reports a failed or rejected compile.
type ErrorFrame struct {
	Type       string `json:"type"`
	CompileID  string `json:"compileId,omitempty"`
	ProjectID  string `json:"projectId"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
}

// ServerFrame decodes any frame the server sends.
type ServerFrame struct {
	Type       string          `json:"type"`
	CompileID  string          `json:"compileId"`
	ProjectID  string          `json:"projectId"`
	UserID     *string         `json:"userId"`
	State      string          `json:"state"`
	ElapsedMs  int64           `json:"elapsedMs"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result"`
}

// queryValues flattens a JSON query object. Strings pass through, true
// becomes "true", numbers are formatted; false and null are dropped so
// flag-style parameters read as unset.
func queryValues(q map[string]any) url.Values {
	values := url.Values{}
	for k, v := range q {
		switch v := v.(type) {
		case string:
			values.Set(k, v)
		case bool:
			if v {
				values.Set(k, "true")
			}
		case float64:
			values.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		case nil:
		default:
			values.Set(k, fmt.Sprint(v))
		}
	}
	return values
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
