// Package compilews implements the realtime compile channel.
//
// A Coordinator upgrades editor connections bound to one project, runs the
// compile frames they send and reports progress back on the same socket.
// Liveness and progress frames look like this:
//
//	{"type":"heartbeat"}
//	{"type":"compile-status","compileId":"c1","projectId":"p1","state":"running","elapsedMs":2000}
//
// Finished compiles are fanned out to every open connection of the
// project that belongs to the requesting user and, when known, the
// requesting session. A compile started over HTTP reaches the socket
// through Coordinator.EmitCompileResult.
//
// Client is the other end: it keeps one connection per project, matches
// results to waits by compile id and redials while waits are pending.
package compilews
