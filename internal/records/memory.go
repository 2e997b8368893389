package records

import (
	"context"
	"sync"

	"codeberg.org/mutker/imuctl/internal/integration"
)

// Memory keeps the most recent records in a fixed ring.
type Memory struct {
	mu    sync.Mutex
	ring  []integration.Record
	next  int
	count int
	total uint64
}

func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{ring: make([]integration.Record, size)}
}

func (m *Memory) Append(_ context.Context, rec integration.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.total++
	return nil
}

// Last returns the newest record.
func (m *Memory) Last() (integration.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return integration.Record{}, false
	}
	return m.ring[(m.next-1+len(m.ring))%len(m.ring)], true
}

// Records returns the retained records, oldest first.
func (m *Memory) Records() []integration.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]integration.Record, 0, m.count)
	start := (m.next - m.count + len(m.ring)) % len(m.ring)
	for i := 0; i < m.count; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Total counts every record ever appended, including evicted ones.
func (m *Memory) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Memory) Close() error {
	return nil
}
