// Package rerank reorders fused candidates with an external pairwise
// scorer. Candidates are scored against the query in batches and sorted
// by relevance; fused order breaks score ties.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/result"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 2
)

// Scorer scores query/document pairs. Available reports whether the
// provider currently admits requests.
type Scorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
	Available(ctx context.Context) bool
}

// Service scores and reorders fused candidates.
type Service struct {
	scorer      Scorer
	batchSize   int
	concurrency int
}

// New creates a rerank service. Non-positive batch size or concurrency
// fall back to defaults.
func New(scorer Scorer, batchSize, concurrency int) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{scorer: scorer, batchSize: batchSize, concurrency: concurrency}
}

// Rerank scores every candidate and returns the top limit by score,
// highest first. Equal scores keep fused order. Any scorer failure
// surfaces as domain.ErrRerankerUnavailable so the pipeline can fall
// back to fused ordering.
func (s *Service) Rerank(ctx context.Context, query string, fused []result.Fused, limit int) ([]result.Ranked, error) {
	if len(fused) == 0 {
		return []result.Ranked{}, nil
	}
	if !s.scorer.Available(ctx) {
		return nil, fmt.Errorf("%w: scorer rejected request", domain.ErrRerankerUnavailable)
	}

	scores, err := s.scoreAll(ctx, query, fused)
	if err != nil {
		return nil, err
	}

	idx := make([]int, len(fused))
	for i := range idx {
		idx[i] = i
	}
	// stable keeps fused rank as the tie-break
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	n := min(limit, len(idx))
	out := make([]result.Ranked, 0, n)
	for _, i := range idx[:n] {
		f := fused[i]
		out = append(out, result.NewRanked(f.ID(), f.Text(), scores[i], f.Metadata(), f.Source()))
	}
	return out, nil
}

// scoreAll scores candidates in batches with bounded parallelism,
// preserving positions.
func (s *Service) scoreAll(ctx context.Context, query string, fused []result.Fused) ([]float64, error) {
	scores := make([]float64, len(fused))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(fused); start += s.batchSize {
		start := start
		end := min(start+s.batchSize, len(fused))
		g.Go(func() error {
			docs := make([]string, 0, end-start)
			for _, f := range fused[start:end] {
				docs = append(docs, f.Text())
			}

			batch, err := s.scorer.Score(gctx, query, docs)
			if err != nil {
				return fmt.Errorf("score batch [%d:%d]: %w", start, end, err)
			}
			if len(batch) != len(docs) {
				return fmt.Errorf("%w: got %d scores for %d documents",
					domain.ErrRerankerUnavailable, len(batch), len(docs))
			}
			copy(scores[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
