package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoSession is returned when a request carries no usable session cookie.
var ErrNoSession = errors.New("session: no session cookie")

// ErrBadSignature is returned when no configured secret verifies the cookie.
var ErrBadSignature = errors.New("session: invalid cookie signature")

const signedPrefix = "s:"

// Sign returns the cookie value for id signed with secret.
func Sign(id, secret string) string {
	return signedPrefix + id + "." + signature(id, secret)
}

func signature(value, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseSignedID recovers the session id from a raw cookie value. Values
// without the "s:" prefix are returned unchanged.
func ParseSignedID(raw string, secrets []string) (string, error) {
	if raw == "" {
		return "", ErrNoSession
	}
	if !strings.HasPrefix(raw, signedPrefix) {
		return raw, nil
	}
	signed := strings.TrimPrefix(raw, signedPrefix)
	dot := strings.LastIndexByte(signed, '.')
	if dot < 0 {
		return "", ErrBadSignature
	}
	value, sig := signed[:dot], signed[dot+1:]
	for _, secret := range secrets {
		if hmac.Equal([]byte(sig), []byte(signature(value, secret))) {
			return value, nil
		}
	}
	return "", ErrBadSignature
}

// IDFromRequest reads and verifies the session cookie named cookieName.
// Session cookies are written percent-encoded ("s%3A<id>.<sig>"), so the
// value is decoded first; a value that does not decode is used as is.
// Decoding leaves "+" alone, since it is a base64 signature character.
func IDFromRequest(r *http.Request, cookieName string, secrets []string) (string, error) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", ErrNoSession
	}
	raw := c.Value
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return ParseSignedID(raw, secrets)
}
