// Package store holds the shared in-memory measurement state: the latest
// reading per source and a time-windowed history ring for graphing.
package store

import (
	"sync"
	"time"

	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

const (
	// DefaultWindow is the history retention window.
	DefaultWindow = 24 * time.Hour
	// DefaultMaxSamples caps the ring per source regardless of window;
	// 5760 samples cover 24h at a 15s cadence.
	DefaultMaxSamples = 5760
)

type entry struct {
	mu        sync.RWMutex
	source    domain.Source
	latest    domain.Reading
	hasLatest bool
	ring      []domain.Reading
}

// MemStore is the concurrency-safe reading holder shared between the poll
// scheduler (sole writer) and presentation readers. Locking is per source
// so one slow reader cannot stall updates for other sources.
type MemStore struct {
	window     time.Duration
	maxSamples int

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	now func() time.Time
}

func NewMemStore(window time.Duration, maxSamples int) *MemStore {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &MemStore{
		window:     window,
		maxSamples: maxSamples,
		entries:    make(map[string]*entry),
		now:        time.Now,
	}
}

// Register adds a source entry. Called once per source at construction,
// before any readers or writers exist.
func (m *MemStore) Register(src domain.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[src.ID]; ok {
		return
	}
	m.entries[src.ID] = &entry{source: src}
	m.order = append(m.order, src.ID)
}

func (m *MemStore) Update(sourceID string, r domain.Reading) {
	e := m.entry(sourceID)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.latest = r
	e.hasLatest = true

	// The ring stays monotonic in timestamp; an out-of-order reading
	// still replaces latest but is not appended.
	if n := len(e.ring); n > 0 && r.Timestamp.Before(e.ring[n-1].Timestamp) {
		return
	}
	e.ring = append(e.ring, r)
	m.evictLocked(e, r.Timestamp)
}

// Seed appends replayed history without touching the latest slot, so a
// restored graph never masquerades as a live value.
func (m *MemStore) Seed(sourceID string, history []domain.Reading) {
	e := m.entry(sourceID)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range history {
		if n := len(e.ring); n > 0 && r.Timestamp.Before(e.ring[n-1].Timestamp) {
			continue
		}
		e.ring = append(e.ring, r)
	}
	if n := len(e.ring); n > 0 {
		m.evictLocked(e, e.ring[n-1].Timestamp)
	}
}

func (m *MemStore) Latest(sourceID string) (domain.Reading, bool) {
	e := m.entry(sourceID)
	if e == nil {
		return domain.Reading{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.hasLatest {
		return domain.Reading{}, false
	}
	r := e.latest
	if stale := e.source.StaleAfter; stale > 0 && m.now().Sub(r.Timestamp) > stale {
		r = r.Stale()
	}
	return r, true
}

func (m *MemStore) History(sourceID string, since time.Time) []domain.Reading {
	e := m.entry(sourceID)
	if e == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	start := 0
	for start < len(e.ring) && e.ring[start].Timestamp.Before(since) {
		start++
	}
	if start == len(e.ring) {
		return nil
	}
	out := make([]domain.Reading, len(e.ring)-start)
	copy(out, e.ring[start:])
	return out
}

func (m *MemStore) Sources() []domain.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Source, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id].source)
	}
	return out
}

// SampleCount reports the total ring occupancy across sources, for gauges.
func (m *MemStore) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int
	for _, e := range m.entries {
		e.mu.RLock()
		n += len(e.ring)
		e.mu.RUnlock()
	}
	return n
}

func (m *MemStore) entry(sourceID string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[sourceID]
}

var _ ports.ReadingStore = (*MemStore)(nil)

func (m *MemStore) evictLocked(e *entry, newest time.Time) {
	cutoff := newest.Add(-m.window)
	for len(e.ring) > 0 && e.ring[0].Timestamp.Before(cutoff) {
		e.ring = e.ring[1:]
	}
	for len(e.ring) > m.maxSamples {
		e.ring = e.ring[1:]
	}
}
