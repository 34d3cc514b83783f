// Package passage defines the immutable unit of retrievable text and the
// versioned corpus snapshot that owns it.
package passage

import (
	"fmt"
	"maps"
)

// Passage is an immutable unit of retrievable text. Updates never mutate a
// Passage in place; they produce a new one as part of a snapshot rebuild.
type Passage struct {
	id       string
	text     string
	metadata map[string]string
}

// New validates and creates a Passage. The metadata map is copied.
func New(id, text string, metadata map[string]string) (Passage, error) {
	if id == "" {
		return Passage{}, fmt.Errorf("passage id is required")
	}
	if text == "" {
		return Passage{}, fmt.Errorf("passage %s: text is required", id)
	}
	var md map[string]string
	if len(metadata) > 0 {
		md = maps.Clone(metadata)
	}
	return Passage{id: id, text: text, metadata: md}, nil
}

// ID returns the stable passage identifier.
func (p *Passage) ID() string { return p.id }

// Text returns the passage content.
func (p *Passage) Text() string { return p.text }

// Metadata returns a copy of the passage metadata.
func (p *Passage) Metadata() map[string]string {
	if p.metadata == nil {
		return nil
	}
	return maps.Clone(p.metadata)
}

// MetadataValue returns a single metadata value.
func (p *Passage) MetadataValue(key string) (string, bool) {
	v, ok := p.metadata[key]
	return v, ok
}

// Snapshot is an immutable, versioned set of passages. Exactly one snapshot
// is active at a time; replacement is a single pointer swap so in-flight
// queries always observe a consistent corpus.
type Snapshot struct {
	version  uint64
	passages []Passage
	byID     map[string]int
}

// NewSnapshot creates a snapshot from passages in insertion order.
// Passage ids must be unique within the snapshot.
func NewSnapshot(version uint64, passages []Passage) (*Snapshot, error) {
	byID := make(map[string]int, len(passages))
	for i := range passages {
		id := passages[i].ID()
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate passage id %q", id)
		}
		byID[id] = i
	}
	ps := make([]Passage, len(passages))
	copy(ps, passages)
	return &Snapshot{version: version, passages: ps, byID: byID}, nil
}

// Version returns the snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of passages.
func (s *Snapshot) Len() int { return len(s.passages) }

// At returns the passage at insertion position i.
func (s *Snapshot) At(i int) *Passage { return &s.passages[i] }

// Get looks up a passage by id.
func (s *Snapshot) Get(id string) (*Passage, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.passages[i], true
}
