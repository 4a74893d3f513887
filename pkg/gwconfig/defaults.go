package gwconfig

import "time"

// Default values, grounded on the teacher's config/defaults.go
// convention of one named constant per field plus an ApplyDefaults
// pass, but scoped to the gateway's own knobs (spec §4.4-§4.9).
const (
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576

	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	DefaultAssistantURL  = "https://codewhisperer.us-east-1.amazonaws.com/generateAssistantResponse"
	DefaultModelsURL     = "https://codewhisperer.us-east-1.amazonaws.com/listAvailableModels"
	DefaultAgentMode     = "vibe"
	DefaultClientVersion = "0.8.0"
	DefaultUpstreamTimeout = 300 * time.Second

	DefaultMaxRetries           = 2
	DefaultRefreshWindow        = 5 * time.Minute
	DefaultPseudoStreamInterval = 120 * time.Millisecond
	DefaultStreamTimeout        = 300 * time.Second
	DefaultNonStreamTimeout     = 120 * time.Second
	DefaultBackoffBase          = 500 * time.Millisecond
	DefaultBackoffFactor        = 2.0

	DefaultMinIntervalPerCredential = 100 * time.Millisecond
	DefaultPerCredentialPerMinute   = 30
	DefaultGlobalPerMinute          = 120
	DefaultCooldownSeconds          = 300

	DefaultHistoryStrategy      = "truncate_head"
	DefaultHistoryMaxCharacters = 60000
	DefaultHistoryMaxTurns      = 40
	DefaultHistoryFastModel     = "claude-3-5-haiku"

	DefaultSessionIdleWindow = 60 * time.Second

	DefaultFlowLogBackend       = "memory"
	DefaultFlowLogSQLitePath    = "data/flowlog.db"
	DefaultFlowLogMemoryCap     = 1000

	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "kiroproxy"
	DefaultMetricsSubsystem = "gateway"

	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLoggingBufferSize = 10000

	DefaultCredentialsFile = "credentials.json"
)

// DefaultRequestDurationBuckets mirrors the teacher's LLM-tuned
// histogram buckets (100ms-30s), unchanged: request latencies here
// are the same order of magnitude.
func DefaultRequestDurationBuckets() []float64 {
	return []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
}

// ApplyDefaults fills zero-valued fields that have a default. TLS,
// Logging.AddSource and Logging.RedactPII are left as given; the CORS
// block is defaulted only when CORS is disabled and lists no origins,
// and Metrics.Enabled only when Metrics.Path is empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if !cfg.Proxy.CORS.Enabled && len(cfg.Proxy.CORS.AllowedOrigins) == 0 {
		cfg.Proxy.CORS.Enabled = DefaultCORSEnabled
		cfg.Proxy.CORS.AllowedOrigins = []string{"*"}
		cfg.Proxy.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
		cfg.Proxy.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
		cfg.Proxy.CORS.ExposedHeaders = []string{"X-Request-ID"}
		cfg.Proxy.CORS.MaxAge = DefaultCORSMaxAge
	}

	if cfg.Upstream.AssistantURL == "" {
		cfg.Upstream.AssistantURL = DefaultAssistantURL
	}
	if cfg.Upstream.ModelsURL == "" {
		cfg.Upstream.ModelsURL = DefaultModelsURL
	}
	if cfg.Upstream.AgentMode == "" {
		cfg.Upstream.AgentMode = DefaultAgentMode
	}
	if cfg.Upstream.ClientVersion == "" {
		cfg.Upstream.ClientVersion = DefaultClientVersion
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}

	if cfg.Orchestrator.MaxRetries == 0 {
		cfg.Orchestrator.MaxRetries = DefaultMaxRetries
	}
	if cfg.Orchestrator.RefreshWindow == 0 {
		cfg.Orchestrator.RefreshWindow = DefaultRefreshWindow
	}
	if cfg.Orchestrator.PseudoStreamInterval == 0 {
		cfg.Orchestrator.PseudoStreamInterval = DefaultPseudoStreamInterval
	}
	if cfg.Orchestrator.StreamTimeout == 0 {
		cfg.Orchestrator.StreamTimeout = DefaultStreamTimeout
	}
	if cfg.Orchestrator.NonStreamTimeout == 0 {
		cfg.Orchestrator.NonStreamTimeout = DefaultNonStreamTimeout
	}
	if cfg.Orchestrator.BackoffBase == 0 {
		cfg.Orchestrator.BackoffBase = DefaultBackoffBase
	}
	if cfg.Orchestrator.BackoffFactor == 0 {
		cfg.Orchestrator.BackoffFactor = DefaultBackoffFactor
	}

	if cfg.RateLimit.MinIntervalPerCredential == 0 {
		cfg.RateLimit.MinIntervalPerCredential = DefaultMinIntervalPerCredential
	}
	if cfg.RateLimit.PerCredentialPerMinute == 0 {
		cfg.RateLimit.PerCredentialPerMinute = DefaultPerCredentialPerMinute
	}
	if cfg.RateLimit.GlobalPerMinute == 0 {
		cfg.RateLimit.GlobalPerMinute = DefaultGlobalPerMinute
	}
	if cfg.RateLimit.CooldownSeconds == 0 {
		cfg.RateLimit.CooldownSeconds = DefaultCooldownSeconds
	}

	if cfg.History.Strategy == "" {
		cfg.History.Strategy = DefaultHistoryStrategy
	}
	if cfg.History.MaxCharacters == 0 {
		cfg.History.MaxCharacters = DefaultHistoryMaxCharacters
	}
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = DefaultHistoryMaxTurns
	}
	if cfg.History.FastModel == "" {
		cfg.History.FastModel = DefaultHistoryFastModel
	}

	if cfg.Session.IdleWindow == 0 {
		cfg.Session.IdleWindow = DefaultSessionIdleWindow
	}

	if cfg.FlowLog.Backend == "" {
		cfg.FlowLog.Backend = DefaultFlowLogBackend
	}
	if cfg.FlowLog.SQLitePath == "" {
		cfg.FlowLog.SQLitePath = DefaultFlowLogSQLitePath
	}
	if cfg.FlowLog.MemoryCapacity == 0 {
		cfg.FlowLog.MemoryCapacity = DefaultFlowLogMemoryCap
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Enabled = DefaultMetricsEnabled
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Metrics.RequestDurationBuckets) == 0 {
		cfg.Metrics.RequestDurationBuckets = DefaultRequestDurationBuckets()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Logging.BufferSize == 0 {
		cfg.Logging.BufferSize = DefaultLoggingBufferSize
	}

	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = DefaultCredentialsFile
	}
}
