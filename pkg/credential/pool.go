package credential

import (
	"sort"
	"sync"
	"time"

	"kiroproxy/gateway/pkg/session"
)

// Pool owns the set of credentials and implements selection,
// failover, and the maintenance operations the background scheduler
// drives. A pool-wide mutex guards only the id→*Credential map itself
// (insert/delete); per-credential mutable state is guarded by the
// credential's own lock, so selection never holds the pool lock
// across I/O.
type Pool struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
	affinity    *session.Affinity
}

// New constructs an empty Pool. idleWindow is the session affinity
// idle expiry (spec default 60s).
func New(idleWindow time.Duration) *Pool {
	return &Pool{
		credentials: make(map[string]*Credential),
		affinity:    session.New(idleWindow),
	}
}

// Add registers a credential, e.g. at boot from persisted config.
func (p *Pool) Add(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credentials[c.ID] = c
}

// Remove deregisters a credential by id.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.credentials, id)
}

// Get returns a credential by id.
func (p *Pool) Get(id string) (*Credential, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.credentials[id]
	return c, ok
}

// All returns a snapshot slice of every registered credential pointer
// (not a deep copy — callers should use Snapshot() for read-only
// inspection).
func (p *Pool) All() []*Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Credential, 0, len(p.credentials))
	for _, c := range p.credentials {
		out = append(out, c)
	}
	return out
}

// Select implements spec §4.4 select(session_key). If sessionKey is
// non-empty and has a live affinity binding to an available
// credential, that credential is returned and the binding is
// refreshed. Otherwise the least-loaded available credential is
// picked (smallest request_count, tie-broken by earliest
// last_used_at), and the binding is (re)established if sessionKey was
// given.
func (p *Pool) Select(sessionKey string) *Credential {
	now := time.Now()

	if sessionKey != "" {
		if boundID, ok := p.affinity.Get(sessionKey, now); ok {
			if c, ok := p.Get(boundID); ok {
				c.EvictExpiredCooldown(now)
				if c.IsAvailable(now) {
					return c
				}
			}
			// Bound credential unavailable: affinity is advisory,
			// silently rebind below.
		}
	}

	c := p.leastLoadedAvailable(now, nil)
	if c == nil {
		return nil
	}
	if sessionKey != "" {
		p.affinity.Bind(sessionKey, c.ID, now)
	}
	return c
}

// NextAvailableExcluding implements failover selection: the
// least-loaded available credential other than excludeID, regardless
// of any affinity binding.
func (p *Pool) NextAvailableExcluding(excludeID string) *Credential {
	return p.leastLoadedAvailable(time.Now(), map[string]bool{excludeID: true})
}

// NextAvailableExcludingSet is NextAvailableExcluding generalized to a
// set of ids, used by the orchestrator's retry loop once more than
// one credential has failed for the current request.
func (p *Pool) NextAvailableExcludingSet(excludeIDs map[string]bool) *Credential {
	return p.leastLoadedAvailable(time.Now(), excludeIDs)
}

func (p *Pool) leastLoadedAvailable(now time.Time, excludeIDs map[string]bool) *Credential {
	candidates := p.All()
	for _, c := range candidates {
		c.EvictExpiredCooldown(now)
	}

	var eligible []*Credential
	for _, c := range candidates {
		if excludeIDs[c.ID] {
			continue
		}
		if c.IsAvailable(now) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].RequestCount(), eligible[j].RequestCount()
		if ri != rj {
			return ri < rj
		}
		return eligible[i].LastUsedAt().Before(eligible[j].LastUsedAt())
	})
	return eligible[0]
}

// UnbindSession drops a stale affinity binding, used by the
// orchestrator when the bound credential becomes unavailable mid-retry.
func (p *Pool) UnbindSession(sessionKey string) {
	p.affinity.Delete(sessionKey)
}

// Close stops the pool's affinity sweep goroutine.
func (p *Pool) Close() {
	p.affinity.Close()
}
