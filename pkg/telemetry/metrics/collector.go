package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kiroproxy/gateway/pkg/gwconfig"
)

// Collector is the gateway's Prometheus metric set, grounded on the
// teacher's metrics.Collector shape (config-driven construction, one
// registry, a handful of record methods) but trimmed to the label
// dimensions this gateway actually has.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamLatency *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	cooldownsTotal  *prometheus.CounterVec
	credentialState *prometheus.GaugeVec
}

// NewCollector builds a Collector from cfg. If registry is nil, a
// fresh Prometheus registry is created.
func NewCollector(cfg gwconfig.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.RequestDurationBuckets
	if len(buckets) == 0 {
		buckets = gwconfig.DefaultRequestDurationBuckets()
	}

	c := &Collector{
		enabled:  cfg.Enabled,
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "requests_total", Help: "Total inbound requests by dialect and outcome.",
		}, []string{"dialect", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "request_duration_seconds", Help: "End-to-end request duration by dialect.",
			Buckets: buckets,
		}, []string{"dialect"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "upstream_latency_seconds", Help: "Upstream dispatch latency.",
			Buckets: buckets,
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "retries_total", Help: "Retry attempts by classification.",
		}, []string{"error_type"}),
		cooldownsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "credential_cooldowns_total", Help: "Cooldown transitions by credential.",
		}, []string{"credential_id"}),
		credentialState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "credential_available", Help: "1 if the credential is currently available, else 0.",
		}, []string{"credential_id"}),
	}

	registry.MustRegister(c.requestsTotal, c.requestDuration, c.upstreamLatency, c.retriesTotal, c.cooldownsTotal, c.credentialState)
	return c
}

// RecordRequest records one completed inbound request.
func (c *Collector) RecordRequest(dialect, outcome string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requestsTotal.WithLabelValues(dialect, outcome).Inc()
	c.requestDuration.WithLabelValues(dialect).Observe(duration.Seconds())
}

// RecordUpstreamLatency records one upstream dispatch's latency.
func (c *Collector) RecordUpstreamLatency(outcome string, latency time.Duration) {
	if !c.enabled {
		return
	}
	c.upstreamLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordRetry records one retry/failover attempt.
func (c *Collector) RecordRetry(errorType string) {
	if !c.enabled {
		return
	}
	c.retriesTotal.WithLabelValues(errorType).Inc()
}

// RecordCooldown records a credential entering COOLDOWN.
func (c *Collector) RecordCooldown(credentialID string) {
	if !c.enabled {
		return
	}
	c.cooldownsTotal.WithLabelValues(credentialID).Inc()
}

// SetCredentialAvailable updates the per-credential availability gauge.
func (c *Collector) SetCredentialAvailable(credentialID string, available bool) {
	if !c.enabled {
		return
	}
	v := 0.0
	if available {
		v = 1.0
	}
	c.credentialState.WithLabelValues(credentialID).Set(v)
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
