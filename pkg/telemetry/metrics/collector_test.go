package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"kiroproxy/gateway/pkg/gwconfig"
)

func testConfig() gwconfig.MetricsConfig {
	return gwconfig.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "gateway",
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordRequest("messages", "success", 250*time.Millisecond)
	c.RecordRequest("messages", "error", 10*time.Millisecond)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("messages", "success")); got != 1 {
		t.Errorf("requestsTotal success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("messages", "error")); got != 1 {
		t.Errorf("requestsTotal error = %v, want 1", got)
	}
}

func TestCollector_DisabledIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.RecordRequest("messages", "success", time.Second)
	c.RecordRetry("rate_limited")
	c.RecordCooldown("cred-1")
	c.SetCredentialAvailable("cred-1", true)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("messages", "success")); got != 0 {
		t.Errorf("disabled collector recorded a request: got %v", got)
	}
}

func TestCollector_CredentialAvailability(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.SetCredentialAvailable("cred-1", true)
	if got := testutil.ToFloat64(c.credentialState.WithLabelValues("cred-1")); got != 1 {
		t.Errorf("credentialState = %v, want 1", got)
	}

	c.SetCredentialAvailable("cred-1", false)
	if got := testutil.ToFloat64(c.credentialState.WithLabelValues("cred-1")); got != 0 {
		t.Errorf("credentialState = %v, want 0", got)
	}
}

func TestCollector_RetryAndCooldownCounters(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordRetry("rate_limited")
	c.RecordRetry("rate_limited")
	c.RecordCooldown("cred-1")

	if got := testutil.ToFloat64(c.retriesTotal.WithLabelValues("rate_limited")); got != 2 {
		t.Errorf("retriesTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cooldownsTotal.WithLabelValues("cred-1")); got != 1 {
		t.Errorf("cooldownsTotal = %v, want 1", got)
	}
}
