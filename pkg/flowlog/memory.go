// Package flowlog implements the FlowRecord observability sink named
// in spec §3 ("not consumed by the core's control flow; emitted at
// defined hooks"). Grounded on pkg/evidence/storage's memory/sqlite
// backend pair, trimmed from evidence's general-purpose query/filter
// surface to the append-only, most-recent-N read pattern an admin
// dashboard needs over request flow history.
package flowlog

import (
	"container/ring"
	"context"
	"sync"

	"kiroproxy/gateway/pkg/orchestrator"
)

// MemoryRecorder keeps the most recent N FlowRecords in a ring buffer.
// Intended for local/dev use and as the default when no persistent
// sink is configured; records are lost on restart.
type MemoryRecorder struct {
	mu  sync.Mutex
	buf *ring.Ring
	n   int
}

// NewMemoryRecorder constructs a MemoryRecorder holding up to capacity
// records.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRecorder{buf: ring.New(capacity)}
}

// Record implements orchestrator.FlowRecorder.
func (m *MemoryRecorder) Record(_ context.Context, rec orchestrator.FlowRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Value = rec
	m.buf = m.buf.Next()
	if m.n < m.buf.Len() {
		m.n++
	}
}

// Recent returns up to the last limit records, most recent last.
func (m *MemoryRecorder) Recent(limit int) []orchestrator.FlowRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]orchestrator.FlowRecord, 0, m.n)
	m.buf.Do(func(v any) {
		if v == nil {
			return
		}
		all = append(all, v.(orchestrator.FlowRecord))
	})

	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}
