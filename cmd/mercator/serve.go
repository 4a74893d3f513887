package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kiroproxy/gateway/pkg/cli"
	"kiroproxy/gateway/pkg/credential"
	"kiroproxy/gateway/pkg/flowlog"
	"kiroproxy/gateway/pkg/gwconfig"
	"kiroproxy/gateway/pkg/history"
	"kiroproxy/gateway/pkg/orchestrator"
	"kiroproxy/gateway/pkg/ratelimit"
	"kiroproxy/gateway/pkg/server"
	"kiroproxy/gateway/pkg/telemetry/logging"
	"kiroproxy/gateway/pkg/telemetry/metrics"
	"kiroproxy/gateway/pkg/upstream"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
}

var serveCmd = &cobra.Command{
	Use:   "serve [port]",
	Short: "Start the gateway proxy server",
	Long: `Start the gateway proxy server with the specified configuration.

The server loads its runtime-tunable knobs from the config file (-c/--config,
default config.yaml) and its persisted credential list from the path named
by that file's credentials_file key. It listens for inbound Anthropic,
OpenAI, and Gemini dialect requests and dispatches them through the
credential pool, rate limiter, history manager, and orchestrator.

An optional positional [port] argument overrides the configured listen
port without changing the configured host; an empty configured host
becomes 127.0.0.1.

Examples:
  # Start with default config
  mercator serve

  # Start on a specific port
  mercator serve 9090

  # Start with a custom config file
  mercator serve --config /etc/gateway/config.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := gwconfig.LoadConfig(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if len(args) == 1 {
		cfg.Proxy.ListenAddress = overridePort(cfg.Proxy.ListenAddress, args[0])
	}
	if serveFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactPII:      cfg.Logging.RedactPII,
		BufferSize:     cfg.Logging.BufferSize,
		RedactPatterns: cfg.Logging.RedactPatterns,
		Writer:         os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Shutdown()

	slog.Info("loading credentials", "path", cfg.CredentialsFile)
	records, err := gwconfig.LoadCredentialRecords(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	pool := gwconfig.BuildPool(records, cfg.Session.IdleWindow)
	defer pool.Close()
	fmt.Printf("✓ Credential pool loaded (%d credentials)\n", len(pool.All()))

	upstreamClient := upstream.New(upstream.Config{
		AssistantURL:  cfg.Upstream.AssistantURL,
		ModelsURL:     cfg.Upstream.ModelsURL,
		AgentMode:     cfg.Upstream.AgentMode,
		ClientVersion: cfg.Upstream.ClientVersion,
		Timeout:       cfg.Upstream.Timeout,
	})

	var refresher credential.TokenRefresher
	if cfg.Upstream.RefreshURL != "" {
		refresher = credential.NewOIDCRefresher(cfg.Upstream.RefreshURL)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MinIntervalPerCredential: cfg.RateLimit.MinIntervalPerCredential,
		PerCredentialPerMinute:   cfg.RateLimit.PerCredentialPerMinute,
		GlobalPerMinute:          cfg.RateLimit.GlobalPerMinute,
		CooldownSeconds:          cfg.RateLimit.CooldownSeconds,
	})

	var summarizer history.Summarizer
	if cfg.History.Strategy == string(history.StrategySummarizeHead) {
		summarizer = orchestrator.NewUpstreamSummarizer(pool, upstreamClient, cfg.History.FastModel, cfg.Upstream.AgentMode, cfg.Upstream.ClientVersion)
	}
	histManager := history.New(history.Config{
		Strategy:      history.Strategy(cfg.History.Strategy),
		MaxCharacters: cfg.History.MaxCharacters,
		MaxTurns:      cfg.History.MaxTurns,
		FastModel:     cfg.History.FastModel,
	}, summarizer)

	recorder, closeRecorder, err := newFlowRecorder(cfg.FlowLog)
	if err != nil {
		return fmt.Errorf("failed to initialize flow recorder: %w", err)
	}
	if closeRecorder != nil {
		defer closeRecorder()
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxRetries = cfg.Orchestrator.MaxRetries
	orchCfg.RefreshWindow = cfg.Orchestrator.RefreshWindow
	orchCfg.PseudoStreamInterval = cfg.Orchestrator.PseudoStreamInterval
	orchCfg.StreamTimeout = cfg.Orchestrator.StreamTimeout
	orchCfg.NonStreamTimeout = cfg.Orchestrator.NonStreamTimeout
	orchCfg.BackoffBase = cfg.Orchestrator.BackoffBase
	orchCfg.BackoffFactor = cfg.Orchestrator.BackoffFactor
	orchCfg.AgentMode = cfg.Upstream.AgentMode
	orchCfg.ClientVersion = cfg.Upstream.ClientVersion

	orch := orchestrator.New(pool, limiter, histManager, upstreamClient, refresher, recorder, orchCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maintainer := credential.NewMaintainer(pool, refresher, upstreamClient, credential.MaintainerConfig{
		AgentMode:     cfg.Upstream.AgentMode,
		ClientVersion: cfg.Upstream.ClientVersion,
	})
	if err := maintainer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start credential maintainer: %w", err)
	}
	defer maintainer.Stop()

	go func() {
		if err := gwconfig.WatchCredentials(ctx, cfg.CredentialsFile, pool); err != nil {
			slog.Error("credential watcher stopped", "error", err)
		}
	}()

	collector := metrics.NewCollector(cfg.Metrics, nil)

	srv := server.NewServer(&cfg.Proxy, &cfg.TLS, orch, collector, cfg.Metrics.Path)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server",
			"address", cfg.Proxy.ListenAddress,
			"tls_enabled", cfg.TLS.Enabled,
		)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Proxy.ListenAddress)
	if cfg.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Proxy.ListenAddress, cfg.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("serve", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Proxy.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("serve", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// newFlowRecorder builds the configured FlowRecorder backend. The
// returned close func is nil for the memory backend (nothing to
// release).
func newFlowRecorder(cfg gwconfig.FlowLogConfig) (orchestrator.FlowRecorder, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		rec, err := flowlog.NewSQLiteRecorder(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return rec, func() { rec.Close() }, nil
	default:
		return flowlog.NewMemoryRecorder(cfg.MemoryCapacity), nil, nil
	}
}

// overridePort replaces the port component of addr with port, keeping
// addr's host unchanged; an empty host becomes 127.0.0.1.
func overridePort(addr, port string) string {
	host := addr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]
			break
		}
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host + ":" + port
}
