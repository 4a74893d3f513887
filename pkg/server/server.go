// Package server provides the main HTTP proxy server for LLM traffic.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kiroproxy/gateway/pkg/gwconfig"
	"kiroproxy/gateway/pkg/orchestrator"
	"kiroproxy/gateway/pkg/proxy/handlers"
	"kiroproxy/gateway/pkg/proxy/middleware"
	"kiroproxy/gateway/pkg/telemetry/metrics"
)

// Server is the main HTTP proxy server fronting the gateway's three
// inbound dialects.
type Server struct {
	config       *gwconfig.ProxyConfig
	tlsConfig    *gwconfig.TLSConfig
	metrics      *metrics.Collector
	metricsPath  string
	httpServer   *http.Server
	orch         *orchestrator.Orchestrator
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new proxy server.
func NewServer(cfg *gwconfig.ProxyConfig, tlsCfg *gwconfig.TLSConfig, orch *orchestrator.Orchestrator, collector *metrics.Collector, metricsPath string) *Server {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Server{
		config:       cfg,
		tlsConfig:    tlsCfg,
		orch:         orch,
		metrics:      collector,
		metricsPath:  metricsPath,
		shutdownChan: make(chan struct{}),
		isRunning:    false,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	// Create router with middleware chain
	handler := s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	// Configure TLS if enabled
	tlsEnabled := s.tlsConfig != nil && s.tlsConfig.Enabled
	if tlsEnabled {
		tlsConfig, err := s.configureTLS()
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting proxy server",
			"address", s.config.ListenAddress,
			"tls_enabled", tlsEnabled,
		)

		var err error
		if tlsEnabled {
			err = s.httpServer.ListenAndServeTLS(
				s.tlsConfig.CertFile,
				s.tlsConfig.KeyFile,
			)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Set up signal handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		// Shutdown HTTP server
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("proxy server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Create handlers
	gateway := handlers.NewGatewayHandler(s.orch)
	modelsHandler := handlers.NewModelsHandler(s.orch)
	healthHandler := handlers.NewHealthHandler()
	readyHandler := handlers.NewReadyHandler(s.orch.Pool)
	credentialHealthHandler := handlers.NewCredentialHealthHandler(s.orch.Pool)

	// Register the three inbound dialects (spec §6)
	mux.HandleFunc("/v1/messages", gateway.Messages)
	mux.HandleFunc("/v1/messages/count_tokens", gateway.CountTokens)
	mux.HandleFunc("/v1/chat/completions", gateway.ChatCompletions)
	mux.HandleFunc("/v1/responses", gateway.ChatCompletions)
	mux.HandleFunc("/v1/models/", gateway.GenerateContent)
	mux.HandleFunc("/v1beta/models/", gateway.GenerateContent)
	mux.Handle("/v1/models", modelsHandler)

	// Operational endpoints
	mux.Handle("/health", healthHandler)
	mux.Handle("/ready", readyHandler)
	mux.Handle("/health/credentials", credentialHealthHandler)
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}

	// Apply middleware chain
	var handler http.Handler = mux

	// Timeout middleware
	handler = middleware.TimeoutMiddleware(s.config.WriteTimeout)(handler)

	// CORS middleware
	corsConfig := s.convertCORSConfig()
	handler = middleware.CORSMiddleware(corsConfig)(handler)

	// Request ID middleware
	handler = middleware.RequestIDMiddleware(handler)

	// Logging middleware
	handler = middleware.LoggingMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// configureTLS configures TLS settings.
func (s *Server) configureTLS() (*tls.Config, error) {
	if s.tlsConfig.CertFile == "" {
		return nil, fmt.Errorf("TLS cert file not specified")
	}

	if s.tlsConfig.KeyFile == "" {
		return nil, fmt.Errorf("TLS key file not specified")
	}

	// Check if files exist
	if _, err := os.Stat(s.tlsConfig.CertFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS cert file not found: %s", s.tlsConfig.CertFile)
	}

	if _, err := os.Stat(s.tlsConfig.KeyFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS key file not found: %s", s.tlsConfig.KeyFile)
	}

	// Create TLS config
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
		},
		PreferServerCipherSuites: true,
	}

	return tlsConfig, nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Health performs a health check on the server.
func (s *Server) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return fmt.Errorf("server is not running")
	}

	now := time.Now()
	for _, c := range s.orch.Pool.All() {
		if c.IsAvailable(now) {
			return nil
		}
	}
	return fmt.Errorf("no available credentials")
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          s.config.CORS.Enabled,
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   s.config.CORS.AllowedMethods,
		AllowedHeaders:   s.config.CORS.AllowedHeaders,
		ExposedHeaders:   s.config.CORS.ExposedHeaders,
		MaxAge:           s.config.CORS.MaxAge,
		AllowCredentials: s.config.CORS.AllowCredentials,
	}
}
