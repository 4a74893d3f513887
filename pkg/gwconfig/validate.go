package gwconfig

import (
	"fmt"
	"strings"
)

// FieldError is a validation error for a single field, identified by
// its dotted YAML path.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err)
	}
	return sb.String()
}

// Validate checks cfg after defaults have been applied, returning a
// ValidationError with every violation found (not just the first).
func Validate(cfg *Config) error {
	var errs []FieldError

	if cfg.Proxy.ListenAddress == "" {
		errs = append(errs, FieldError{"proxy.listen_address", "must not be empty"})
	}
	if cfg.Proxy.ReadTimeout < 0 {
		errs = append(errs, FieldError{"proxy.read_timeout", "must be >= 0"})
	}
	if cfg.Proxy.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{"proxy.max_header_bytes", "must be >= 0"})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{"tls.cert_file", "required when tls.enabled is true"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{"tls.key_file", "required when tls.enabled is true"})
		}
	}

	if cfg.Upstream.AssistantURL == "" {
		errs = append(errs, FieldError{"upstream.assistant_url", "must not be empty"})
	}
	if cfg.Upstream.ModelsURL == "" {
		errs = append(errs, FieldError{"upstream.models_url", "must not be empty"})
	}

	if cfg.Orchestrator.MaxRetries < 0 {
		errs = append(errs, FieldError{"orchestrator.max_retries", "must be >= 0"})
	}
	if cfg.Orchestrator.BackoffFactor < 1 {
		errs = append(errs, FieldError{"orchestrator.backoff_factor", "must be >= 1"})
	}

	if cfg.RateLimit.PerCredentialPerMinute < 0 {
		errs = append(errs, FieldError{"rate_limit.per_credential_per_minute", "must be >= 0"})
	}
	if cfg.RateLimit.GlobalPerMinute < 0 {
		errs = append(errs, FieldError{"rate_limit.global_per_minute", "must be >= 0"})
	}
	if cfg.RateLimit.CooldownSeconds < 0 {
		errs = append(errs, FieldError{"rate_limit.cooldown_seconds", "must be >= 0"})
	}

	switch cfg.History.Strategy {
	case "truncate_head", "summarize_head", "summarize_on_error_only":
	default:
		errs = append(errs, FieldError{"history.strategy", fmt.Sprintf("unknown strategy %q", cfg.History.Strategy)})
	}
	if cfg.History.MaxCharacters <= 0 {
		errs = append(errs, FieldError{"history.max_characters", "must be > 0"})
	}
	if cfg.History.MaxTurns <= 0 {
		errs = append(errs, FieldError{"history.max_turns", "must be > 0"})
	}

	switch cfg.FlowLog.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{"flow_log.backend", fmt.Sprintf("unknown backend %q", cfg.FlowLog.Backend)})
	}
	if cfg.FlowLog.Backend == "sqlite" && cfg.FlowLog.SQLitePath == "" {
		errs = append(errs, FieldError{"flow_log.sqlite_path", "required when flow_log.backend is sqlite"})
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{"logging.format", fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}

	if cfg.CredentialsFile == "" {
		errs = append(errs, FieldError{"credentials_file", "must not be empty"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
