package splittest

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// DefaultVariant is assigned when no rollout covers the user.
const DefaultVariant = "default"

// PhaseRelease is the phase rollouts are evaluated in.
const PhaseRelease = "release"

// Variant is one arm of a split test.
type Variant struct {
	Name           string `yaml:"name"`
	RolloutPercent int    `yaml:"rollout_percent"`
}

// Test is one split test.
type Test struct {
	Variants []Variant `yaml:"variants"`
}

// File is the on-disk assignments document.
type File struct {
	Tests map[string]Test `yaml:"tests"`
}

// Validate checks rollouts are within 0..100 in total.
func (f *File) Validate() error {
	for name, t := range f.Tests {
		total := 0
		for _, v := range t.Variants {
			if v.Name == "" {
				return fmt.Errorf("split test %q: variant name is required", name)
			}
			if v.RolloutPercent < 0 {
				return fmt.Errorf("split test %q: variant %q has negative rollout", name, v.Name)
			}
			total += v.RolloutPercent
		}
		if total > 100 {
			return fmt.Errorf("split test %q: rollouts sum to %d%%", name, total)
		}
	}
	return nil
}

// Percentile maps (analyticsID, testName, phase) to a stable bucket in
// [0, 100). The first 4 bytes of a SHA-1 over the joined inputs are used.
func Percentile(analyticsID, testName, phase string) int {
	sum := sha1.Sum([]byte(analyticsID + "-" + testName + "-" + phase))
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}

// Manager serves assignments from the current file contents. Reloads swap
// the whole document atomically.
type Manager struct {
	path    string
	current atomic.Pointer[File]
	logger  *slog.Logger
}

// NewManager creates a Manager. An empty path yields a manager where every
// test resolves to DefaultVariant.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:   path,
		logger: logger.With("component", "splittest"),
	}
	m.current.Store(&File{})
	if path == "" {
		return m, nil
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager serves a fixed document.
func NewStaticManager(f *File) *Manager {
	m := &Manager{logger: slog.Default().With("component", "splittest")}
	if f == nil {
		f = &File{}
	}
	m.current.Store(f)
	return m
}

// Path returns the backing file path.
func (m *Manager) Path() string {
	return m.path
}

// Reload rereads the backing file. On error the previous document is kept.
func (m *Manager) Reload() error {
	if m.path == "" {
		return errors.New("split test manager has no backing file")
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read split tests: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse split tests: %w", err)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	m.current.Store(&f)
	m.logger.Info("split tests loaded", "path", m.path, "tests", len(f.Tests))
	return nil
}

// GetAssignment returns the variant of testName for analyticsID. A value
// for testName in overrides wins when it names a known variant.
func (m *Manager) GetAssignment(ctx context.Context, analyticsID, testName string, overrides url.Values) string {
	f := m.current.Load()
	t, ok := f.Tests[testName]

	if v := overrides.Get(testName); v != "" {
		if v == DefaultVariant || (ok && t.hasVariant(v)) {
			m.logger.DebugContext(ctx, "split test overridden", "test", testName, "variant", v)
			return v
		}
	}
	if !ok || analyticsID == "" {
		return DefaultVariant
	}

	p := Percentile(analyticsID, testName, PhaseRelease)
	cumulative := 0
	for _, v := range t.Variants {
		cumulative += v.RolloutPercent
		if p < cumulative {
			return v.Name
		}
	}
	return DefaultVariant
}

func (t Test) hasVariant(name string) bool {
	for _, v := range t.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}
