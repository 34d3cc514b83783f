// Package tracestore keeps the most recent pipeline traces in a fixed-size
// ring buffer. Old traces are overwritten once capacity is reached; the
// store never grows and never blocks a search.
package tracestore

import (
	"sync"
	"time"

	"github.com/ragline/ragline/internal/domain/trace"
	"github.com/ragline/ragline/internal/metrics"
)

// DefaultCapacity bounds the ring when no explicit capacity is configured.
const DefaultCapacity = 256

// Store is a bounded, concurrency-safe ring buffer of finished traces.
type Store struct {
	mu       sync.RWMutex
	items    []trace.Trace
	head     int
	size     int
	capacity int

	// cumulative counters survive ring overwrites
	appended uint64
	byStatus map[trace.Status]uint64
}

// Stats summarizes the store contents.
type Stats struct {
	Capacity int
	Size     int
	Appended uint64
	ByStatus map[trace.Status]uint64
	AvgTotal time.Duration
	MaxTotal time.Duration
}

// New creates a trace store. A non-positive capacity falls back to
// DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		items:    make([]trace.Trace, capacity),
		capacity: capacity,
		byStatus: make(map[trace.Status]uint64),
	}
}

// Append records a finished trace, evicting the oldest entry when full.
func (s *Store) Append(t trace.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[s.head] = t
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}

	s.appended++
	s.byStatus[t.Status()]++
	metrics.TraceStoreDepth.Set(float64(s.size))
}

// Recent returns up to n traces, newest first. n <= 0 returns all retained
// traces. The returned slice is a copy.
func (s *Store) Recent(n int) []trace.Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]trace.Trace, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		out = append(out, s.items[idx])
	}
	return out
}

// Len returns the number of retained traces.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Stats computes aggregate statistics over the retained traces plus
// cumulative counters since startup.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Capacity: s.capacity,
		Size:     s.size,
		Appended: s.appended,
		ByStatus: make(map[trace.Status]uint64, len(s.byStatus)),
	}
	for k, v := range s.byStatus {
		st.ByStatus[k] = v
	}

	var sum time.Duration
	for i := 0; i < s.size; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		total := s.items[idx].Total()
		sum += total
		if total > st.MaxTotal {
			st.MaxTotal = total
		}
	}
	if s.size > 0 {
		st.AvgTotal = sum / time.Duration(s.size)
	}
	return st
}
