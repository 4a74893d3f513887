package credential

import "time"

// DefaultCooldownSeconds is used when the pool's configured cooldown
// is zero (spec §4.4 default 300s).
const DefaultCooldownSeconds = 300

// MarkQuotaExceeded transitions ACTIVE → COOLDOWN. Calling it twice
// sets the later (longer) deadline rather than shortening an existing
// cooldown — matching the idempotence property in the testable
// properties section.
func (c *Credential) MarkQuotaExceeded(reason string, cooldownSeconds int, now time.Time) {
	if cooldownSeconds <= 0 {
		cooldownSeconds = DefaultCooldownSeconds
	}
	newDeadline := now.Add(time.Duration(cooldownSeconds) * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	if newDeadline.After(c.cooldownUntil) {
		c.cooldownUntil = newDeadline
	}
	c.status = StatusCooldown
	c.cooldownReason = reason
}

// MarkSuspended transitions to SUSPENDED. Only Restore can clear it.
func (c *Credential) MarkSuspended() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusSuspended
}

// MarkUnhealthy transitions to UNHEALTHY, e.g. after a failed health
// check or token refresh.
func (c *Credential) MarkUnhealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusSuspended && c.status != StatusDisabled {
		c.status = StatusUnhealthy
	}
}

// MarkHealthy transitions UNHEALTHY → ACTIVE on a successful health
// check. It is a no-op from any other state (only UNHEALTHY has a
// defined recovery edge per the state table).
func (c *Credential) MarkHealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusUnhealthy {
		c.status = StatusActive
	}
}

// Restore clears any quota record and returns the credential to ACTIVE
// unless it is SUSPENDED (admin action required) or DISABLED. Calling
// Restore on an already-active credential is a no-op.
func (c *Credential) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownUntil = time.Time{}
	c.cooldownReason = ""
	if c.status != StatusSuspended && c.status != StatusDisabled {
		c.status = StatusActive
	}
}

// SetEnabled implements the admin any→DISABLED / DISABLED→previous
// toggle. Disabling does not erase status; re-enabling restores
// whatever status the credential held, since "enabled" is orthogonal
// to the health/quota status in the availability invariant.
func (c *Credential) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// BeginRefresh acquires the per-credential refresh lock, returning
// false if a refresh is already in flight (serializes refresh_token
// per credential per the concurrency model).
func (c *Credential) BeginRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshing {
		return false
	}
	c.refreshing = true
	return true
}

// EndRefresh releases the per-credential refresh lock and, on success,
// installs the new tokens.
func (c *Credential) EndRefresh(newTokens *Tokens, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	if err != nil {
		return
	}
	if newTokens != nil {
		c.tokens = *newTokens
		if c.status == StatusUnhealthy {
			c.status = StatusActive
		}
	}
}

// NeedsRefresh reports whether the credential's token expires within
// window and it holds a refresh token to renew it with.
func (c *Credential) NeedsRefresh(window time.Duration, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens.RefreshToken != "" && !c.tokens.ExpiresAt.IsZero() && now.Add(window).After(c.tokens.ExpiresAt)
}

// UpdateTokens replaces the credential's token material outside the
// refresh-in-flight path, e.g. when the on-disk token record changed
// out from under the gateway (external token tooling, config
// hot-reload). A credential that regains an access token this way
// leaves UNHEALTHY for ACTIVE.
func (c *Credential) UpdateTokens(tokens Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	if c.status == StatusUnhealthy && tokens.AccessToken != "" {
		c.status = StatusActive
	}
}
