// Package dense adapts the external vector store into the pipeline's dense
// retrieval branch: it embeds the query, issues a KNN search, and
// normalizes hits into candidates.
package dense

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/result"
)

// store is the consumer interface for KNN search.
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Searcher implements the dense retrieval branch against a vector store.
type Searcher struct {
	store     store
	embed     domain.Embedder
	indexName string
	keyPrefix string
}

// New creates a dense searcher. keyPrefix is stripped from hash keys to
// recover passage ids.
func New(s store, embed domain.Embedder, indexName, keyPrefix string) *Searcher {
	return &Searcher{store: s, embed: embed, indexName: indexName, keyPrefix: keyPrefix}
}

// Search embeds the query and runs a KNN search, preserving provider
// ordering. Hit distances arrive already converted to similarities in
// [0,1] by the db layer (cosine metric, pinned at index creation).
// Provider failures wrap domain.ErrRetrievalUnavailable so the
// orchestrator can decide whether to degrade.
func (s *Searcher) Search(
	ctx context.Context, query string, limit int, filters filter.Expression,
) ([]result.Candidate, error) {
	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: vectorize query: %w", domain.ErrRetrievalUnavailable, err)
	}

	sr, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: s.indexName,
		Filters:   filters,
		Vector:    emb.Embedding,
		K:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn search: %w", domain.ErrRetrievalUnavailable, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return []result.Candidate{}, nil
	}

	out := make([]result.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, s.keyPrefix)
		text, metadata := splitFields(entry.Fields)
		out = append(out, result.NewCandidate(id, entry.Score, text, metadata, result.SourceDense))
	}
	return out, nil
}

// splitFields separates the reserved __text field from plain metadata
// fields. The raw __vector bytes are dropped.
func splitFields(fields map[string]string) (string, map[string]string) {
	var text string
	var metadata map[string]string
	for k, v := range fields {
		switch k {
		case "__text":
			text = v
		case "__vector":
			// not needed after scoring
		default:
			if metadata == nil {
				metadata = make(map[string]string)
			}
			metadata[k] = v
		}
	}
	return text, metadata
}
