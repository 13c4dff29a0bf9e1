// Package compile coordinates a single compile request end to end.
//
// # Overview
//
// The Orchestrator turns an editor compile request into a backend call and a
// client response:
//
//  1. Normalize and validate options from the query string and body.
//  2. Resolve pdf caching from split-test assignments.
//  3. Start the keepalive heartbeat when a sink is supplied.
//  4. Invoke the backend compile.
//  5. Stop the heartbeat on every path.
//  6. Shape the response, deriving the output.zip archive descriptor.
//  7. Record the compile-result-backend analytics event for a sampled
//     bucket of users.
//
// Backend failures are returned unchanged. A backend status of
// "unavailable" is a result, not an error.
//
// # Usage
//
//	orch := compile.NewOrchestrator(compile.Config{
//	    Invoker:   clsiClient,
//	    Limits:    directory,
//	    Assigner:  splitTests,
//	    Heartbeat: heartbeat.NewEmitter(heartbeat.Config{Interval: 10 * time.Second}),
//	})
//
//	resp, err := orch.CompileProject(ctx, req, compile.Hooks{Heartbeat: sink})
package compile
