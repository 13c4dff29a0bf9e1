// Package session reads editor sessions shared with the web application.
//
// The session id travels in a signed cookie of the form "s:<id>.<sig>",
// where sig is the unpadded base64 HMAC-SHA256 of id. Several secrets may
// be configured to allow rotation; each is tried in order. Session bodies
// are JSON documents kept in a Store keyed by id.
package session
