package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseSignedID(t *testing.T) {
	signed := Sign("abc123", "current")

	tests := []struct {
		name    string
		raw     string
		secrets []string
		want    string
		wantErr error
	}{
		{"current secret", signed, []string{"current"}, "abc123", nil},
		{"rotated secret", signed, []string{"next", "current"}, "abc123", nil},
		{"unknown secret", signed, []string{"other"}, "", ErrBadSignature},
		{"no secrets", signed, nil, "", ErrBadSignature},
		{"tampered value", "s:abc124." + signed[len("s:abc123."):], []string{"current"}, "", ErrBadSignature},
		{"missing signature", "s:abc123", []string{"current"}, "", ErrBadSignature},
		{"unsigned value", "raw-session", []string{"current"}, "raw-session", nil},
		{"empty", "", []string{"current"}, "", ErrNoSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignedID(tt.raw, tt.secrets)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSign_Format(t *testing.T) {
	// Known vector: base64(HMAC-SHA256("keyboard cat", "hello")) without padding.
	got := Sign("hello", "keyboard cat")
	want := "s:hello.xz6khi6+oL1pnNhBgjk3Nr1CX2sxTjJiO9pKXaHZ33E"
	if got != want {
		t.Errorf("Sign = %q, want %q", got, want)
	}
}

func TestIDFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/compile-ws?projectId=p1", nil)
	if _, err := IDFromRequest(r, "overleaf.sid", []string{"s"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession without cookie, got %v", err)
	}

	r.AddCookie(&http.Cookie{Name: "overleaf.sid", Value: Sign("sid-1", "s")})
	id, err := IDFromRequest(r, "overleaf.sid", []string{"s"})
	if err != nil || id != "sid-1" {
		t.Errorf("got %q, %v", id, err)
	}
}

func TestIDFromRequest_EncodedCookie(t *testing.T) {
	signed := Sign("abc123", "secret")
	tests := []struct {
		name  string
		value string
	}{
		{"percent encoded", url.QueryEscape(signed)},
		{"raw", signed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/project/p1/compile", nil)
			r.Header.Set("Cookie", "overleaf.sid="+tt.value)
			id, err := IDFromRequest(r, "overleaf.sid", []string{"secret"})
			if err != nil || id != "abc123" {
				t.Errorf("IDFromRequest() = %q, %v; want abc123", id, err)
			}
		})
	}

	t.Run("undecodable value is used as is", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Cookie", "overleaf.sid=legacy%zz")
		id, err := IDFromRequest(r, "overleaf.sid", nil)
		if err != nil || id != "legacy%zz" {
			t.Errorf("IDFromRequest() = %q, %v", id, err)
		}
	})
}
