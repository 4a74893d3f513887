package gwconfig

import "time"

// Config is the gateway's runtime-tunable configuration, loaded from a
// single YAML file (default "config.yaml").
type Config struct {
	Proxy        ProxyConfig        `yaml:"proxy"`
	TLS          TLSConfig          `yaml:"tls"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	History      HistoryConfig      `yaml:"history"`
	Session      SessionConfig      `yaml:"session"`
	FlowLog      FlowLogConfig      `yaml:"flow_log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`

	// CredentialsFile is the path to the persisted credential config
	// (spec's "Persisted state": a JSON list of {id, name, token_path,
	// enabled}), watched for changes at runtime.
	CredentialsFile string `yaml:"credentials_file"`
}

// ProxyConfig controls the inbound HTTP listener.
type ProxyConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading the entire request, including body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes bounds request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin request handling.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// TLSConfig controls TLS termination on the inbound listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// UpstreamConfig describes how to reach the upstream endpoint and its
// OIDC token-refresh endpoint.
type UpstreamConfig struct {
	AssistantURL  string        `yaml:"assistant_url"`
	ModelsURL     string        `yaml:"models_url"`
	RefreshURL    string        `yaml:"refresh_url"`
	AgentMode     string        `yaml:"agent_mode"`
	ClientVersion string        `yaml:"client_version"`
	Timeout       time.Duration `yaml:"timeout"`
}

// OrchestratorConfig holds the per-request procedure's tunable knobs
// (spec §4.8/§4.9).
type OrchestratorConfig struct {
	MaxRetries           int           `yaml:"max_retries"`
	RefreshWindow        time.Duration `yaml:"refresh_window"`
	PseudoStreamInterval time.Duration `yaml:"pseudo_stream_interval"`
	StreamTimeout        time.Duration `yaml:"stream_timeout"`
	NonStreamTimeout     time.Duration `yaml:"non_stream_timeout"`
	BackoffBase          time.Duration `yaml:"backoff_base"`
	BackoffFactor        float64       `yaml:"backoff_factor"`
}

// RateLimitConfig holds the pacing knobs (spec §4.5).
type RateLimitConfig struct {
	MinIntervalPerCredential time.Duration `yaml:"min_interval_per_credential"`
	PerCredentialPerMinute   int           `yaml:"per_credential_per_minute"`
	GlobalPerMinute          int           `yaml:"global_per_minute"`
	CooldownSeconds          int           `yaml:"cooldown_seconds"`
}

// HistoryConfig holds the compaction knobs (spec §4.6).
type HistoryConfig struct {
	Strategy      string `yaml:"strategy"`
	MaxCharacters int    `yaml:"max_characters"`
	MaxTurns      int    `yaml:"max_turns"`
	FastModel     string `yaml:"fast_model"`
}

// SessionConfig holds the session-affinity idle window (spec §3/§4.4).
type SessionConfig struct {
	IdleWindow time.Duration `yaml:"idle_window"`
}

// FlowLogConfig selects the FlowRecord sink.
type FlowLogConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// SQLitePath is the database file, used when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path"`
	// MemoryCapacity bounds the ring buffer, used when Backend is "memory".
	MemoryCapacity int `yaml:"memory_capacity"`
}

// MetricsConfig controls the Prometheus /metrics surface.
type MetricsConfig struct {
	Enabled                bool      `yaml:"enabled"`
	Path                   string    `yaml:"path"`
	Namespace              string    `yaml:"namespace"`
	Subsystem              string    `yaml:"subsystem"`
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// LoggingConfig controls structured logging and PII redaction.
type LoggingConfig struct {
	Level          string          `yaml:"level"`
	Format         string          `yaml:"format"`
	AddSource      bool            `yaml:"add_source"`
	RedactPII      bool            `yaml:"redact_pii"`
	BufferSize     int             `yaml:"buffer_size"`
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern layered on top of
// the built-in token/credential patterns.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}
