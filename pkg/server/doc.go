// Package server provides the main HTTP proxy server for the gateway.
//
// This package ties together the credential pool, orchestrator, and
// metrics collector and provides server lifecycle management
// including start, shutdown, and health checks.
//
// # Architecture
//
// The server package is the top-level orchestrator that:
//   - Sets up HTTP routes and handlers
//   - Chains middleware for cross-cutting concerns
//   - Configures TLS termination
//   - Manages graceful shutdown
//   - Handles OS signals (SIGTERM, SIGINT)
//
// # Basic Usage
//
// Creating and starting a server:
//
//	import (
//	    "context"
//	    "kiroproxy/gateway/pkg/gwconfig"
//	    "kiroproxy/gateway/pkg/server"
//	)
//
//	cfg, _ := gwconfig.LoadConfig(path)
//	srv := server.NewServer(&cfg.Proxy, &cfg.TLS, orch, collector, cfg.Metrics.Path)
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The server handles graceful shutdown automatically when receiving SIGTERM or SIGINT:
//
//	if err := srv.Shutdown(context.Background()); err != nil {
//	    log.Error("shutdown error", "error", err)
//	}
//
// The shutdown process:
//  1. Stops accepting new connections
//  2. Waits for active connections to complete (up to shutdown timeout)
//  3. Returns an error if the timeout expires first (connections are not force-closed)
//  4. Cleans up resources
//
// # Routes
//
// The server exposes the following HTTP endpoints:
//
//   - POST /v1/messages, /v1/messages/count_tokens - Anthropic dialect
//   - POST /v1/chat/completions, /v1/responses - OpenAI dialect
//   - POST /v1/models/*, /v1beta/models/* - Gemini dialect
//   - GET /health - Liveness probe (always returns 200)
//   - GET /ready - Readiness probe (checks credential pool health)
//   - GET /health/credentials - Detailed per-credential health
//   - GET /metrics - Prometheus scrape endpoint (when enabled)
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. Timeout: Enforces per-request timeout
//  2. CORS: Adds Cross-Origin Resource Sharing headers
//  3. RequestID: Generates unique request ID for tracing
//  4. Logging: Logs request/response details
//  5. Recovery: Recovers from panics and returns 500 error
//
// # TLS Support
//
// The server supports TLS 1.3 with configurable certificates via
// gwconfig.TLSConfig.
//
// # Thread Safety
//
// All server operations are thread-safe and can be called concurrently from
// multiple goroutines.
package server
