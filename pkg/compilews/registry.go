package compilews

import "sync"

// Registry tracks open connections per project. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	byProject map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byProject: make(map[string]map[*Conn]struct{})}
}

// Add registers c under projectID.
func (r *Registry) Add(projectID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byProject[projectID]
	if !ok {
		conns = make(map[*Conn]struct{})
		r.byProject[projectID] = conns
	}
	conns[c] = struct{}{}
}

// Remove deregisters c. Removing the last connection of a project drops
// the project entry.
func (r *Registry) Remove(projectID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byProject[projectID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byProject, projectID)
	}
}

// ForEach calls fn for every connection of projectID. fn runs outside the
// registry lock and may block.
func (r *Registry) ForEach(projectID string, fn func(*Conn)) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.byProject[projectID]))
	for c := range r.byProject[projectID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		fn(c)
	}
}

// Range calls fn for every registered connection.
func (r *Registry) Range(fn func(*Conn)) {
	r.mu.RLock()
	var conns []*Conn
	for _, set := range r.byProject {
		for c := range set {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		fn(c)
	}
}

// Len returns the number of connections of projectID.
func (r *Registry) Len(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byProject[projectID])
}

// Projects returns the number of projects with at least one connection.
func (r *Registry) Projects() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byProject)
}
