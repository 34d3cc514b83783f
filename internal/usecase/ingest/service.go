// Package ingest loads passages into the corpus: it writes embeddings to
// the dense store and publishes a fresh snapshot for the keyword index.
// Ingests are serialized; searches keep running against the previous
// snapshot until the swap.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain/passage"
	"github.com/ragline/ragline/internal/index/keyword"
)

// Source supplies passages to ingest.
type Source interface {
	Load(ctx context.Context) ([]passage.Passage, error)
}

// corpusRepo is the consumer interface for dense corpus writes.
type corpusRepo interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, passages []passage.Passage) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// indexRebuilder swaps the active keyword index to a new snapshot.
type indexRebuilder interface {
	Rebuild(snap *passage.Snapshot) *keyword.Index
	Ready() bool
	Version() uint64
}

// Stats describes the current corpus state.
type Stats struct {
	SnapshotVersion uint64    `json:"snapshot_version"`
	SnapshotLen     int       `json:"snapshot_len"`
	DenseCount      int       `json:"dense_count"`
	Ready           bool      `json:"ready"`
	LastIngest      time.Time `json:"last_ingest,omitzero"`
}

// Result summarizes one ingest run.
type Result struct {
	SnapshotVersion uint64 `json:"snapshot_version"`
	Ingested        int    `json:"ingested"`
	Cleared         bool   `json:"cleared"`
}

// Service owns the authoritative in-memory corpus and keeps the dense
// store and keyword index in sync with it.
type Service struct {
	corpus corpusRepo
	index  indexRebuilder
	logger *zap.Logger

	mu         sync.Mutex
	byID       map[string]int
	passages   []passage.Passage
	version    uint64
	lastIngest time.Time
}

// New creates the ingest service.
func New(corpus corpusRepo, index indexRebuilder, logger *zap.Logger) *Service {
	return &Service{
		corpus: corpus,
		index:  index,
		logger: logger,
		byID:   make(map[string]int),
	}
}

// Run loads passages from src and applies them: clear wipes the corpus
// first, otherwise passages merge by id with existing ones. On success a
// new snapshot version becomes searchable atomically.
func (s *Service) Run(ctx context.Context, src Source, clear bool) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load passages: %w", err)
	}

	if clear {
		if err := s.corpus.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear corpus: %w", err)
		}
		s.passages = nil
		s.byID = make(map[string]int)
	}

	if err := s.corpus.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure index: %w", err)
	}
	if err := s.corpus.Upsert(ctx, loaded); err != nil {
		return nil, fmt.Errorf("upsert passages: %w", err)
	}

	for _, p := range loaded {
		if i, ok := s.byID[p.ID()]; ok {
			s.passages[i] = p
			continue
		}
		s.byID[p.ID()] = len(s.passages)
		s.passages = append(s.passages, p)
	}

	s.version++
	snap, err := passage.NewSnapshot(s.version, s.passages)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	idx := s.index.Rebuild(snap)
	s.lastIngest = time.Now()

	s.logger.Info("Ingest complete",
		zap.Uint64("snapshot_version", s.version),
		zap.Int("loaded", len(loaded)),
		zap.Int("indexed", idx.Len()),
		zap.Bool("cleared", clear),
	)

	return &Result{
		SnapshotVersion: s.version,
		Ingested:        len(loaded),
		Cleared:         clear,
	}, nil
}

// Stats reports snapshot and dense store state. The dense count comes
// from the store so drift between the two sides is visible.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	version := s.version
	length := len(s.passages)
	last := s.lastIngest
	s.mu.Unlock()

	denseCount, err := s.corpus.Count(ctx)
	if err != nil {
		s.logger.Warn("Failed to count dense passages", zap.Error(err))
		denseCount = -1
	}

	return &Stats{
		SnapshotVersion: version,
		SnapshotLen:     length,
		DenseCount:      denseCount,
		Ready:           s.index.Ready(),
		LastIngest:      last,
	}, nil
}
