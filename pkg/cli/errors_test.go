package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/compilegate/pkg/config"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("clsi.url", "is required")

	expected := "config error in clsi.url: is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("listen tcp: address in use")
	err := NewCommandError("run", underlying)

	expected := "command run failed: listen tcp: address in use"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlying) {
		t.Error("CommandError does not unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	validation := config.ValidationError{Errors: []config.FieldError{{Field: "clsi.url", Message: "is required"}}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: errors.New("boom"), want: ExitFailure},
		{name: "config error", err: NewConfigError("a", "b"), want: ExitConfigError},
		{name: "validation error", err: fmt.Errorf("configuration validation failed: %w", validation), want: ExitConfigError},
		{name: "wrapped in command", err: NewCommandError("validate", validation), want: ExitConfigError},
		{name: "command failure", err: NewCommandError("run", errors.New("boom")), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
