// Package session derives a content-based session key from an inbound
// request and binds it to the credential currently serving it.
package session

import (
	"sync"
	"time"
)

// Entry is one affinity binding.
type Entry struct {
	CredentialID   string
	CreatedAt      time.Time
	LastTouchedAt  time.Time
	expiresAt      time.Time
}

// Affinity is a thread-safe session-key → credential-id map with an
// idle-window expiry: unlike a fixed-TTL-from-creation cache, every
// successful Get pushes the expiry deadline forward, so a conversation that
// keeps calling within the idle window never loses its binding.
//
// Adapted from pkg/routing's StickyCache, which expires purely from
// creation time; this spec's affinity (§3) is defined as "expires
// after a fixed idle window", measured from the last touch, so Get
// here refreshes the deadline instead of leaving it untouched.
type Affinity struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	idleWindow time.Duration
	stopCh     chan struct{}
}

// New returns an Affinity map whose entries expire after idleWindow of
// inactivity (spec default: 60s). A background sweep evicts expired
// entries every idleWindow/2 (minimum 5s).
func New(idleWindow time.Duration) *Affinity {
	a := &Affinity{
		entries:    make(map[string]*Entry),
		idleWindow: idleWindow,
		stopCh:     make(chan struct{}),
	}
	go a.sweepLoop()
	return a
}

// Get returns the bound credential id for key if the binding is still
// alive, refreshing its idle deadline. It reports false if there is no
// live binding.
func (a *Affinity) Get(key string, now time.Time) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok || now.After(e.expiresAt) {
		if ok {
			delete(a.entries, key)
		}
		return "", false
	}
	e.LastTouchedAt = now
	e.expiresAt = now.Add(a.idleWindow)
	return e.CredentialID, true
}

// Bind creates or overwrites the binding for key.
func (a *Affinity) Bind(key, credentialID string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = &Entry{
		CredentialID:  credentialID,
		CreatedAt:     now,
		LastTouchedAt: now,
		expiresAt:     now.Add(a.idleWindow),
	}
}

// Delete removes a binding, e.g. when its credential becomes
// unavailable and the orchestrator rebinds.
func (a *Affinity) Delete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
}

// Size returns the number of live bindings (expired ones included
// until the next sweep).
func (a *Affinity) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Close stops the background sweep goroutine.
func (a *Affinity) Close() {
	close(a.stopCh)
}

func (a *Affinity) sweepLoop() {
	interval := a.idleWindow / 2
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.sweep(time.Now())
		case <-a.stopCh:
			return
		}
	}
}

func (a *Affinity) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, e := range a.entries {
		if now.After(e.expiresAt) {
			delete(a.entries, key)
		}
	}
}
