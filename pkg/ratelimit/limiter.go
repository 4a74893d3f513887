// Package ratelimit paces requests per credential and globally (spec
// §4.5). It combines a minimum-interval check, a per-credential
// per-minute cap, and a global per-minute cap; all three must pass
// for a request to proceed.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the runtime-tunable knobs. Limits are configurable at
// runtime via SetConfig.
type Config struct {
	MinIntervalPerCredential time.Duration
	PerCredentialPerMinute   int
	GlobalPerMinute          int
	// CooldownSeconds is surfaced here only so callers in possession
	// of a Limiter can read the currently configured cooldown; the
	// credential pool owns applying it.
	CooldownSeconds int
}

// Result is returned by CanRequest.
type Result struct {
	Permitted   bool
	WaitSeconds float64
	Reason      string
}

// Limiter tracks global and per-credential rate state. Grounded on
// pkg/limits/ratelimit's multi-dimension token-bucket Limiter, trimmed
// to the three knobs this spec names and adapted to golang.org/x/time/
// rate's Limiter as the underlying primitive (one instance per
// dimension, the same "distinct bucket per key" shape the teacher
// uses for its per-second/per-minute/per-hour buckets).
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	global *rate.Limiter

	perCredential     map[string]*rate.Limiter
	lastRequestAt     map[string]time.Time
}

// New constructs a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:           cfg,
		perCredential: make(map[string]*rate.Limiter),
		lastRequestAt: make(map[string]time.Time),
	}
	l.rebuildGlobal()
	return l
}

// SetConfig replaces the runtime configuration; existing per-credential
// limiters are rebuilt lazily on next use against the new rate.
func (l *Limiter) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.perCredential = make(map[string]*rate.Limiter)
	l.rebuildGlobalLocked()
}

func (l *Limiter) rebuildGlobal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildGlobalLocked()
}

func (l *Limiter) rebuildGlobalLocked() {
	if l.cfg.GlobalPerMinute > 0 {
		l.global = rate.NewLimiter(rate.Limit(float64(l.cfg.GlobalPerMinute)/60.0), l.cfg.GlobalPerMinute)
	} else {
		l.global = nil
	}
}

func (l *Limiter) credentialLimiter(id string) *rate.Limiter {
	if lim, ok := l.perCredential[id]; ok {
		return lim
	}
	if l.cfg.PerCredentialPerMinute <= 0 {
		return nil
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.cfg.PerCredentialPerMinute)/60.0), l.cfg.PerCredentialPerMinute)
	l.perCredential[id] = lim
	return lim
}

// CanRequest implements spec §4.5's can_request(id). A permitted outcome
// consumes one token from the per-credential and global buckets; the
// minimum-interval timestamp changes only through RecordRequest, which
// callers must call after a permitted, successfully dispatched request.
func (l *Limiter) CanRequest(id string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.MinIntervalPerCredential > 0 {
		if last, ok := l.lastRequestAt[id]; ok {
			elapsed := now.Sub(last)
			if elapsed < l.cfg.MinIntervalPerCredential {
				wait := (l.cfg.MinIntervalPerCredential - elapsed).Seconds()
				return Result{Permitted: false, WaitSeconds: wait, Reason: "minimum interval not elapsed"}
			}
		}
	}

	if credLim := l.credentialLimiter(id); credLim != nil {
		if r := credLim.ReserveN(now, 1); r.OK() {
			delay := r.DelayFrom(now)
			if delay > 0 {
				r.Cancel()
				return Result{Permitted: false, WaitSeconds: delay.Seconds(), Reason: "per-credential per-minute cap exceeded"}
			}
		}
	}

	if l.global != nil {
		if r := l.global.ReserveN(now, 1); r.OK() {
			delay := r.DelayFrom(now)
			if delay > 0 {
				r.Cancel()
				return Result{Permitted: false, WaitSeconds: delay.Seconds(), Reason: "global per-minute cap exceeded"}
			}
		}
	}

	return Result{Permitted: true}
}

// RecordRequest records a successful dispatch against id, used by the
// minimum-interval check.
func (l *Limiter) RecordRequest(id string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRequestAt[id] = now
}
