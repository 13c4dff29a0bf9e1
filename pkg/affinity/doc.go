// Package affinity pins projects to the compile backend server that last
// served them.
//
// The CLSI cluster keeps per-project build caches on individual servers.
// After a compile, the backend reports which server handled it; later calls
// for the same (project, user, compile group, backend class) send that id
// back as a cookie so the load balancer routes to the warm server.
//
// # Stores
//
//   - MemoryStore: bounded LRU with expiry (default)
//   - SQLiteStore: survives restarts on a single instance
//
// Records are last-writer-wins. An explicit server id supplied by a client
// bypasses the store entirely; that decision lives with the caller.
//
// # Usage
//
//	store := affinity.NewMemoryStore(affinity.MemoryStoreConfig{})
//	sel := affinity.NewSelector(store, affinity.SelectorConfig{TTL: 24 * time.Hour})
//	if id := sel.GetServerID(ctx, key); id != "" {
//	    req.AddCookie(sel.CookieFor(id))
//	}
package affinity
