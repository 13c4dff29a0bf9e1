// Compilegate coordinates LaTeX compile requests between editor clients and
// the CLSI compile backend.
//
// It serves the project compile and output routes, streams build output,
// keeps users pinned to the backend server that holds their build, and pushes
// compile results to listeners on the realtime compile channel.
//
// Usage:
//
//	# Start the server
//	compilegate run --config /etc/compilegate/config.yaml
//
//	# Check a configuration file and the files it points at
//	compilegate validate --config config.yaml
//
//	# Remove expired affinity records once
//	compilegate affinity prune
//
//	# Show version information
//	compilegate version
package main

func main() {
	Execute()
}
