// Package heartbeat keeps held-open transports alive while a long compile
// runs.
//
// An Emitter pings a Sink once on start and then on every interval until the
// returned stop function is called or the sink reports it is done. The
// plain HTTP sink writes a 102 Processing interim response, which does not
// commit the final status.
package heartbeat
