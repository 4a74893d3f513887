package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kiroproxy/gateway/pkg/upstream"
)

// refreshWindow is how far ahead of expiry a token is eligible for
// pre-emptive refresh (spec §4.4: 15 minutes).
const refreshWindow = 15 * time.Minute

// TokenRefresher exchanges a refresh token for a new access token
// against the upstream's OIDC endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, tokens Tokens) (Tokens, error)
}

// MaintainerConfig controls the background scheduler's two
// independent sweeps.
type MaintainerConfig struct {
	RefreshCron string // default "@every 300s"
	HealthCron  string // default "@every 600s"
	AgentMode     string
	ClientVersion string
}

// Maintainer runs the Pool's scheduled refresh and health-probe
// sweeps (spec §4.4 "Background maintenance"), implemented as a
// single long-lived cron-driven task with no hidden globals beyond
// the pool, refresher, and upstream client it is constructed with.
type Maintainer struct {
	pool      *Pool
	refresher TokenRefresher
	upstream  *upstream.Client
	cfg       MaintainerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewMaintainer constructs a Maintainer. refresher may be nil if no
// credential ever carries a refresh token (refresh sweeps become
// no-ops).
func NewMaintainer(pool *Pool, refresher TokenRefresher, client *upstream.Client, cfg MaintainerConfig) *Maintainer {
	if cfg.RefreshCron == "" {
		cfg.RefreshCron = "@every 300s"
	}
	if cfg.HealthCron == "" {
		cfg.HealthCron = "@every 600s"
	}
	return &Maintainer{
		pool:      pool,
		refresher: refresher,
		upstream:  client,
		cfg:       cfg,
		logger:    slog.Default().With("component", "credential.maintainer"),
	}
}

// Start schedules both sweeps and begins running them in the
// background. ctx cancellation stops the cron scheduler.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.cfg.RefreshCron, func() { m.runRefreshSweep(ctx) }); err != nil {
		return fmt.Errorf("credential: schedule refresh sweep: %w", err)
	}
	if _, err := m.cron.AddFunc(m.cfg.HealthCron, func() { m.runHealthSweep(ctx) }); err != nil {
		return fmt.Errorf("credential: schedule health sweep: %w", err)
	}
	m.cron.Start()
	m.running = true

	m.logger.Info("maintainer started", "refresh_schedule", m.cfg.RefreshCron, "health_schedule", m.cfg.HealthCron)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop halts the cron scheduler.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.running = false
	m.logger.Info("maintainer stopped")
}

func (m *Maintainer) runRefreshSweep(ctx context.Context) {
	for _, c := range m.pool.All() {
		snap := c.Snapshot()
		if !snap.Enabled {
			continue
		}
		if !c.NeedsRefresh(refreshWindow, time.Now()) {
			continue
		}
		m.refreshOne(ctx, c)
	}
}

func (m *Maintainer) refreshOne(ctx context.Context, c *Credential) {
	if m.refresher == nil {
		return
	}
	if !c.BeginRefresh() {
		return // already in flight
	}

	tokens := c.TokensSnapshot()
	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	newTokens, err := m.refresher.Refresh(refreshCtx, tokens)
	if err != nil {
		c.EndRefresh(nil, err)
		c.MarkUnhealthy()
		m.logger.Warn("token refresh failed", "credential", c.ID, "error", err)
		return
	}
	c.EndRefresh(&newTokens, nil)
	m.logger.Info("token refreshed", "credential", c.ID)
}

func (m *Maintainer) runHealthSweep(ctx context.Context) {
	for _, c := range m.pool.All() {
		snap := c.Snapshot()
		if !snap.Enabled {
			continue
		}
		m.probeOne(ctx, c)
	}
}

func (m *Maintainer) probeOne(ctx context.Context, c *Credential) {
	token := c.AccessToken()
	if token == "" {
		c.MarkUnhealthy()
		return
	}

	_, status, err := m.upstream.ProbeModels(ctx, token, c.MachineID, m.cfg.AgentMode, m.cfg.ClientVersion)
	if err != nil {
		m.logger.Warn("health probe failed", "credential", c.ID, "error", err)
		return
	}

	switch {
	case status == 200:
		wasUnhealthy := c.Snapshot().Status == StatusUnhealthy
		c.MarkHealthy()
		if wasUnhealthy {
			m.logger.Info("credential recovered", "credential", c.ID)
		}
	case status == 401:
		c.MarkUnhealthy()
		m.logger.Warn("credential auth failed on probe", "credential", c.ID)
	case status == 429:
		// quota signal, not a health signal: leave status untouched.
	}
}
