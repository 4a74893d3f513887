// Command mercator is the gateway's HTTP proxy fronting a single
// upstream assistant endpoint through a pool of rotating credentials.
//
// It accepts Anthropic, OpenAI, and Gemini-dialect requests, applies
// session affinity, history compaction, and rate limiting, and
// dispatches them against the upstream with automatic failover across
// the credential pool.
//
// Usage:
//
//	# Start the proxy with default configuration
//	mercator serve
//
//	# Start on a specific port
//	mercator serve 9090
//
//	# Start with a custom configuration file
//	mercator serve --config /path/to/config.yaml
//
//	# Show version information
//	mercator version
package main

func main() {
	Execute()
}
