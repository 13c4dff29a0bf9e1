package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/compilegate/pkg/cli"
)

const minimalConfig = `
clsi:
  url: "http://clsi.internal:3013"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidate_Text(t *testing.T) {
	path := writeFile(t, "config.yaml", minimalConfig)

	out, err := execute(t, "validate", "--config", path, "--output", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "clsi_url")
	assert.Contains(t, out, "http://clsi.internal:3013")
	assert.Contains(t, out, "projects_file")
	assert.Contains(t, out, "(none)")
}

func TestValidate_JSON(t *testing.T) {
	path := writeFile(t, "config.yaml", minimalConfig)

	out, err := execute(t, "validate", "--config", path, "--output", "json")
	require.NoError(t, err)

	var rows []cli.Row
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	got := map[string]any{}
	for _, r := range rows {
		got[r.Key] = r.Value
	}
	assert.Equal(t, "memory", got["affinity_backend"])
	assert.Equal(t, "standard", got["default_compile_group"])
	assert.Equal(t, true, got["realtime"])
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		args     []string
		wantCode int
	}{
		{
			name:     "missing clsi url",
			config:   "server:\n  listen_address: \"127.0.0.1:3000\"\n",
			wantCode: cli.ExitConfigError,
		},
		{
			name:     "unknown compile group",
			config:   minimalConfig + "compile:\n  default_compile_group: turbo\n",
			wantCode: cli.ExitConfigError,
		},
		{
			name:     "broken projects file",
			config:   minimalConfig + "projects:\n  file_path: " + "%PROJECTS%" + "\n",
			wantCode: cli.ExitConfigError,
		},
		{
			name:     "unknown output format",
			config:   minimalConfig,
			args:     []string{"--output", "xml"},
			wantCode: cli.ExitConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects := writeFile(t, "projects.yaml", "projects: [")
			content := strings.ReplaceAll(tt.config, "%PROJECTS%", projects)
			path := writeFile(t, "config.yaml", content)

			args := append([]string{"validate", "--config", path, "--output", "text"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, cli.ExitCode(err))
		})
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--output", "text")
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.ExitCode(err))
}
