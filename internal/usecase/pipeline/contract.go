package pipeline

import (
	"context"

	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/result"
	"github.com/ragline/ragline/internal/domain/trace"
)

// DenseSearcher is the semantic retrieval branch.
type DenseSearcher interface {
	Search(ctx context.Context, query string, limit int, filters filter.Expression) ([]result.Candidate, error)
}

// KeywordSearcher is the lexical retrieval branch. Metadata filtering is
// applied by the orchestrator after retrieval.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]result.Candidate, error)
}

// Reranker reorders fused candidates by cross-encoder relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, fused []result.Fused, limit int) ([]result.Ranked, error)
}

// TraceSink receives finished traces.
type TraceSink interface {
	Append(t trace.Trace)
}
