// Package telemetry groups the gateway's observability subpackages.
// This package itself holds no code; each subpackage is used directly.
//
// # Components
//
//   - logging: Structured logging with optional credential redaction
//   - metrics: Prometheus metrics collection
//   - health: Health check endpoints
//
// There is no tracing component.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	if err != nil {
//	    return err
//	}
//	logger.Info("Request processed", "duration_ms", 123)
//
//	collector := metrics.NewCollector(cfg.Metrics, nil)
//	collector.RecordRequest("messages", "success", time.Second)
//
// # Redaction
//
// When RedactPII is set, the logging Redactor masks credential material:
// values under access-token, refresh-token, authorization and bearer keys,
// and access_token=, refresh_token= and "Bearer <token>" text inside string
// values. Other values, such as emails or API keys under other field names,
// are logged as given. Custom redaction patterns can be configured.
package telemetry
