package affinity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BackendClass is the hardware class of the compile cluster serving a
// project. The set is closed; unrecognised values are rejected at load time.
type BackendClass string

const (
	BackendClassN2D BackendClass = "n2d"
	BackendClassC2D BackendClass = "c2d"
	BackendClassC3D BackendClass = "c3d"
	BackendClassC4D BackendClass = "c4d"
)

var backendClasses = map[BackendClass]bool{
	BackendClassN2D: true,
	BackendClassC2D: true,
	BackendClassC3D: true,
	BackendClassC4D: true,
}

// ParseBackendClass converts s into a BackendClass.
func ParseBackendClass(s string) (BackendClass, error) {
	bc := BackendClass(strings.ToLower(strings.TrimSpace(s)))
	if !backendClasses[bc] {
		return "", fmt.Errorf("unknown compile backend class %q", s)
	}
	return bc, nil
}

// CompileGroup is the priority tier a project compiles in.
type CompileGroup string

const (
	CompileGroupStandard CompileGroup = "standard"
	CompileGroupPriority CompileGroup = "priority"
	CompileGroupAlpha    CompileGroup = "alpha"
)

var compileGroups = map[CompileGroup]bool{
	CompileGroupStandard: true,
	CompileGroupPriority: true,
	CompileGroupAlpha:    true,
}

// ParseCompileGroup converts s into a CompileGroup.
func ParseCompileGroup(s string) (CompileGroup, error) {
	g := CompileGroup(strings.ToLower(strings.TrimSpace(s)))
	if !compileGroups[g] {
		return "", fmt.Errorf("unknown compile group %q", s)
	}
	return g, nil
}

// Key identifies one affinity record. UserID is empty for shared
// (per-project) compiles.
type Key struct {
	ProjectID    string
	UserID       string
	CompileGroup CompileGroup
	BackendClass BackendClass
}

// String returns the canonical storage key.
func (k Key) String() string {
	user := k.UserID
	if user == "" {
		user = "-"
	}
	return fmt.Sprintf("clsiserver:%s:%s:%s:%s", k.ProjectID, user, k.CompileGroup, k.BackendClass)
}

// Store persists server affinity records with an expiry.
// Implementations must be safe for concurrent use; concurrent writers to the
// same key are last-writer-wins.
type Store interface {
	// Get returns the server id for key. ok is false when no unexpired
	// record exists.
	Get(ctx context.Context, key Key) (serverID string, ok bool, err error)

	// Set records serverID for key, replacing any previous value, and
	// expires it after ttl.
	Set(ctx context.Context, key Key, serverID string, ttl time.Duration) error

	// Delete removes the record for key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key Key) error

	// PruneExpired removes records that expired at or before now and
	// returns how many were removed.
	PruneExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}
