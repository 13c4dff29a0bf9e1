package compilews

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryValues(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want url.Values
	}{
		{name: "nil", in: nil, want: url.Values{}},
		{name: "string", in: map[string]any{"clsiserverid": "clsi-1"}, want: url.Values{"clsiserverid": {"clsi-1"}}},
		{name: "true flag", in: map[string]any{"auto_compile": true}, want: url.Values{"auto_compile": {"true"}}},
		{name: "false flag dropped", in: map[string]any{"auto_compile": false}, want: url.Values{}},
		{name: "null dropped", in: map[string]any{"enable_pdf_caching": nil}, want: url.Values{}},
		{name: "number", in: map[string]any{"n": 42.0, "f": 1.5}, want: url.Values{"n": {"42"}, "f": {"1.5"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryValues(tt.in))
		})
	}
}

func TestResultFrame_AnonymousUserIsNull(t *testing.T) {
	data, err := json.Marshal(ResultFrame{Type: TypeCompileResult, CompileID: "c1", ProjectID: "p1", UserID: nullable("")})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"compile-result","compileId":"c1","projectId":"p1","userId":null,"result":null}`, string(data))
}
