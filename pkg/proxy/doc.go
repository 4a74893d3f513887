// Package proxy provides the HTTP-facing handlers and middleware for
// the gateway's inbound dialects (Anthropic, OpenAI, Gemini).
//
// The proxy layer is the network-facing entry point for all requests,
// handling request parsing, dialect translation hand-off to the
// orchestrator, response streaming, and metadata extraction.
//
// # Architecture
//
//   - Handlers: dialect-specific request parsing and response encoding
//   - Middleware: cross-cutting concerns (logging, CORS, request ID, recovery, timeouts)
//
// # Streaming Support
//
// The proxy supports Server-Sent Events (SSE) streaming for the
// OpenAI and Anthropic dialects, and pseudo-streaming (chunked
// delivery of an already-complete response) when the requested model
// name carries the pseudo-stream prefix.
//
// # Health Checks
//
// The proxy exposes health check endpoints for load balancers:
//
//   - GET /health - Always returns 200 OK (liveness probe)
//   - GET /ready - Returns 200 if at least one credential is available
//
// # Error Handling
//
// Errors are translated back into the shape the calling dialect
// expects (OpenAI error envelope, Anthropic error envelope, or Gemini
// error envelope) rather than a single shared format.
package proxy
