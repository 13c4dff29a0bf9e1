// Package project resolves project names, compile limits and read access.
//
// The directory is a YAML file with one entry per project:
//
//	defaults:
//	  compile_group: standard
//	  compile_backend_class: n2d
//	  timeout: 240s
//	projects:
//	  5f1c...:
//	    name: Thesis
//	    owner_id: 64a0...
//	    owner_analytics_id: 0d6e...
//	    compile_group: priority
//	    collaborators: [64b1...]
//	    tokens: [read-token]
//
// A project without an explicit limit inherits the defaults.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/compilegate/pkg/affinity"
)

// ErrNotFound is returned for unknown project ids.
var ErrNotFound = errors.New("project: not found")

// Project is one directory entry.
type Project struct {
	ID               string   `yaml:"-"`
	Name             string   `yaml:"name"`
	OwnerID          string   `yaml:"owner_id"`
	OwnerAnalyticsID string   `yaml:"owner_analytics_id"`
	Collaborators    []string `yaml:"collaborators"`
	Tokens           []string `yaml:"tokens"`
	Public           bool     `yaml:"public"`

	CompileGroup        string        `yaml:"compile_group"`
	CompileBackendClass string        `yaml:"compile_backend_class"`
	Timeout             time.Duration `yaml:"timeout"`
}

// Limits are the compile limits a project runs under.
type Limits struct {
	CompileGroup     affinity.CompileGroup
	BackendClass     affinity.BackendClass
	Timeout          time.Duration
	OwnerAnalyticsID string
}

// Defaults apply to projects that set no limit of their own.
type Defaults struct {
	CompileGroup        string        `yaml:"compile_group"`
	CompileBackendClass string        `yaml:"compile_backend_class"`
	Timeout             time.Duration `yaml:"timeout"`
}

type document struct {
	Defaults Defaults            `yaml:"defaults"`
	Projects map[string]*Project `yaml:"projects"`
}

// Directory looks projects up.
type Directory interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	GetCompileLimits(ctx context.Context, projectID string) (*Limits, error)
}

// Authorizer decides read access. token is an anonymous link-sharing token
// and may be empty; userID is empty for anonymous visitors.
type Authorizer interface {
	CanRead(ctx context.Context, userID, projectID, token string) (bool, error)
}

type snapshot struct {
	defaults Limits
	projects map[string]*Project
	limits   map[string]*Limits
}

// FileDirectory serves a YAML project file. It implements Directory and
// Authorizer.
type FileDirectory struct {
	path     string
	fallback Defaults
	current  atomic.Pointer[snapshot]
	logger   *slog.Logger
}

// NewFileDirectory loads path. fallback fills defaults the file leaves
// unset. An empty path yields an empty directory.
func NewFileDirectory(path string, fallback Defaults, logger *slog.Logger) (*FileDirectory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &FileDirectory{
		path:     path,
		fallback: fallback,
		logger:   logger.With("component", "project.directory"),
	}
	if path == "" {
		snap, err := d.build(&document{})
		if err != nil {
			return nil, err
		}
		d.current.Store(snap)
		return d, nil
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the backing file path.
func (d *FileDirectory) Path() string {
	return d.path
}

// Reload rereads the backing file. On error the previous contents are kept.
func (d *FileDirectory) Reload() error {
	if d.path == "" {
		return errors.New("project directory has no backing file")
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("failed to read project directory: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse project directory: %w", err)
	}
	snap, err := d.build(&doc)
	if err != nil {
		return err
	}
	d.current.Store(snap)
	d.logger.Info("project directory loaded", "path", d.path, "projects", len(snap.projects))
	return nil
}

func (d *FileDirectory) build(doc *document) (*snapshot, error) {
	def := doc.Defaults
	if def.CompileGroup == "" {
		def.CompileGroup = d.fallback.CompileGroup
	}
	if def.CompileBackendClass == "" {
		def.CompileBackendClass = d.fallback.CompileBackendClass
	}
	if def.Timeout == 0 {
		def.Timeout = d.fallback.Timeout
	}

	defaults, err := resolveLimits("defaults", def.CompileGroup, def.CompileBackendClass, def.Timeout)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		defaults: *defaults,
		projects: make(map[string]*Project, len(doc.Projects)),
		limits:   make(map[string]*Limits, len(doc.Projects)),
	}
	for id, p := range doc.Projects {
		if p == nil {
			p = &Project{}
		}
		p.ID = id

		group, class, timeout := p.CompileGroup, p.CompileBackendClass, p.Timeout
		if group == "" {
			group = def.CompileGroup
		}
		if class == "" {
			class = def.CompileBackendClass
		}
		if timeout == 0 {
			timeout = def.Timeout
		}
		limits, err := resolveLimits(id, group, class, timeout)
		if err != nil {
			return nil, err
		}
		limits.OwnerAnalyticsID = p.OwnerAnalyticsID

		snap.projects[id] = p
		snap.limits[id] = limits
	}
	return snap, nil
}

func resolveLimits(where, group, class string, timeout time.Duration) (*Limits, error) {
	g, err := affinity.ParseCompileGroup(group)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", where, err)
	}
	c, err := affinity.ParseBackendClass(class)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", where, err)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("project %s: negative timeout", where)
	}
	return &Limits{CompileGroup: g, BackendClass: c, Timeout: timeout}, nil
}

// GetProject implements Directory.
func (d *FileDirectory) GetProject(_ context.Context, projectID string) (*Project, error) {
	p, ok := d.current.Load().projects[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetCompileLimits implements Directory.
func (d *FileDirectory) GetCompileLimits(_ context.Context, projectID string) (*Limits, error) {
	l, ok := d.current.Load().limits[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// DefaultLimits returns the limits of projects that set none, used for
// anonymous submissions.
func (d *FileDirectory) DefaultLimits() Limits {
	return d.current.Load().defaults
}

// CanRead implements Authorizer. Owners, collaborators and holders of a
// project token may read; public projects are readable by anyone.
func (d *FileDirectory) CanRead(_ context.Context, userID, projectID, token string) (bool, error) {
	p, ok := d.current.Load().projects[projectID]
	if !ok {
		return false, nil
	}
	switch {
	case p.Public:
		return true, nil
	case userID != "" && (p.OwnerID == userID || slices.Contains(p.Collaborators, userID)):
		return true, nil
	case token != "" && slices.Contains(p.Tokens, token):
		return true, nil
	}
	return false, nil
}
