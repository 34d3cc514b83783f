// Package ragline is an embeddable hybrid retrieval engine: BM25 keyword
// search and dense vector search fused with reciprocal rank fusion, with
// an optional cross-encoder rerank pass. The HTTP server in cmd/ragline
// wraps the same machinery; this package is the library entry point.
package ragline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/db"
	dbredis "github.com/ragline/ragline/internal/db/redis"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/passage"
	"github.com/ragline/ragline/internal/domain/search/mode"
	"github.com/ragline/ragline/internal/index/keyword"
	"github.com/ragline/ragline/internal/metrics"
	corpusrepo "github.com/ragline/ragline/internal/repository/corpus"
	denserepo "github.com/ragline/ragline/internal/repository/dense"
	"github.com/ragline/ragline/internal/repository/embcache"
	"github.com/ragline/ragline/internal/repository/tracestore"
	openaitr "github.com/ragline/ragline/internal/transport/openai"
	reranktr "github.com/ragline/ragline/internal/transport/rerank"
	ingestuc "github.com/ragline/ragline/internal/usecase/ingest"
	pipelineuc "github.com/ragline/ragline/internal/usecase/pipeline"
	rerankuc "github.com/ragline/ragline/internal/usecase/rerank"
)

const defaultReadinessTimeout = 10 * time.Second

// Engine is the ragline library entry point.
type Engine struct {
	store    db.Store
	ownStore bool
	holder   *keyword.Holder
	traces   *tracestore.Store
	pipeline *pipelineuc.Service
	ingest   *ingestuc.Service
}

// New creates an Engine and connects to the vector store.
func New(opts ...Option) (*Engine, error) {
	cfg := newEngineConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	store := cfg.store
	ownStore := false
	if store == nil {
		if len(cfg.addrs) == 0 {
			return nil, errors.New("ragline: database address required (use WithDatabase)")
		}
		s, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("ragline: create store: %w", err)
		}
		if err := s.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("ragline: database not ready: %w", err)
		}
		store = s
		ownStore = true
	}

	embedder := cfg.embedder
	if embedder == nil {
		if cfg.embedding.Model == "" {
			if ownStore {
				store.Close()
			}
			return nil, errors.New("ragline: embedding model required (use WithEmbedding or WithEmbedder)")
		}
		base := openaitr.NewEmbedder(&openaitr.Config{
			APIKey:     cfg.embedding.APIKey,
			BaseURL:    cfg.embedding.BaseURL,
			Model:      cfg.embedding.Model,
			Dimensions: cfg.embedding.Dimensions,
			Provider:   cfg.embedding.Provider,
			Logger:     cfg.logger,
		})
		embedder = embcache.New(base, store, cfg.embedding.CacheKeyPrefix, metrics.EmbeddingCacheTotal, cfg.logger)
	}

	scorer := cfg.scorer
	if scorer == nil && cfg.rerankURL != "" {
		scorer = reranktr.NewClient(&reranktr.Config{
			BaseURL: cfg.rerankURL,
			Logger:  cfg.logger,
		})
	}
	var reranker pipelineuc.Reranker
	if scorer != nil {
		reranker = rerankuc.New(scorer, 0, 0)
	}

	holder := keyword.NewHolder()
	traces := tracestore.New(cfg.traceCapacity)

	dense := denserepo.New(store, embedder, cfg.corpus.IndexName, cfg.corpus.KeyPrefix)
	corpus := corpusrepo.New(store, embedder, cfg.corpus)

	pipe := pipelineuc.New(dense, holder, reranker, traces, cfg.pipeline, cfg.logger)
	ing := ingestuc.New(corpus, holder, cfg.logger)

	return &Engine{
		store:    store,
		ownStore: ownStore,
		holder:   holder,
		traces:   traces,
		pipeline: pipe,
		ingest:   ing,
	}, nil
}

// SearchParams are the inputs to one search.
type SearchParams struct {
	Query   string
	Mode    string // "hybrid" (default), "semantic", "keyword"
	Filters map[string]string
	TopK    int
	Limit   int
	Rerank  *bool // nil means enabled
}

// SearchResult is a single ranked passage.
type SearchResult struct {
	ID       string
	Text     string
	Score    float64
	Source   string
	Metadata map[string]string
}

// SearchResponse is the outcome of one search.
type SearchResponse struct {
	TraceID string
	Status  string // "success" or "degraded"
	Took    time.Duration
	Results []SearchResult
}

// Search runs the retrieval pipeline.
func (e *Engine) Search(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	filters, err := filtersFromMap(p.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	rerank := true
	if p.Rerank != nil {
		rerank = *p.Rerank
	}

	resp, err := e.pipeline.Search(ctx, pipelineuc.Params{
		Query:   p.Query,
		Mode:    mode.Mode(p.Mode),
		Filters: filters,
		TopK:    p.TopK,
		Limit:   p.Limit,
		Rerank:  rerank,
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		results = append(results, SearchResult{
			ID:       r.ID(),
			Text:     r.Text(),
			Score:    r.Score(),
			Source:   string(r.Source()),
			Metadata: r.Metadata(),
		})
	}

	return &SearchResponse{
		TraceID: resp.TraceID,
		Status:  string(resp.Status),
		Took:    resp.Took,
		Results: results,
	}, nil
}

// Passage is one ingestable unit of text.
type Passage struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	SnapshotVersion uint64
	Ingested        int
	Cleared         bool
}

// Ingest loads passages into the corpus. clear wipes existing passages
// first; otherwise passages merge by id.
func (e *Engine) Ingest(ctx context.Context, passages []Passage, clear bool) (*IngestResult, error) {
	ps := make([]passage.Passage, 0, len(passages))
	for _, p := range passages {
		dp, err := passage.New(p.ID, p.Text, p.Metadata)
		if err != nil {
			return nil, err
		}
		ps = append(ps, dp)
	}

	res, err := e.ingest.Run(ctx, staticSource(ps), clear)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		SnapshotVersion: res.SnapshotVersion,
		Ingested:        res.Ingested,
		Cleared:         res.Cleared,
	}, nil
}

// IngestFile loads passages from a JSONL file.
func (e *Engine) IngestFile(ctx context.Context, path string, clear bool) (*IngestResult, error) {
	res, err := e.ingest.Run(ctx, ingestuc.NewJSONLSource(path), clear)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		SnapshotVersion: res.SnapshotVersion,
		Ingested:        res.Ingested,
		Cleared:         res.Cleared,
	}, nil
}

// Stats describes the current corpus state.
type Stats struct {
	SnapshotVersion uint64
	SnapshotLen     int
	DenseCount      int
	Ready           bool
}

// Stats reports corpus state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.ingest.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		SnapshotVersion: st.SnapshotVersion,
		SnapshotLen:     st.SnapshotLen,
		DenseCount:      st.DenseCount,
		Ready:           st.Ready,
	}, nil
}

// Close releases the store connection when the Engine owns it.
func (e *Engine) Close() {
	if e.ownStore {
		e.store.Close()
	}
}

// staticSource adapts an in-memory passage slice to the ingest source
// contract.
type staticSource []passage.Passage

func (s staticSource) Load(_ context.Context) ([]passage.Passage, error) {
	return []passage.Passage(s), nil
}
