package ragline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	corpusrepo "github.com/ragline/ragline/internal/repository/corpus"
	pipelineuc "github.com/ragline/ragline/internal/usecase/pipeline"
	rerankuc "github.com/ragline/ragline/internal/usecase/rerank"
)

// EmbeddingConfig holds embedding provider settings for the Engine.
type EmbeddingConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	Provider       string
	CacheKeyPrefix string
}

type engineConfig struct {
	addrs    []string
	password string

	embedding EmbeddingConfig
	rerankURL string

	corpus        corpusrepo.Config
	pipeline      pipelineuc.Config
	traceCapacity int

	logger *zap.Logger

	// test/embedding injection
	store    db.Store
	embedder domain.Embedder
	scorer   rerankuc.Scorer
}

func newEngineConfig() *engineConfig {
	return &engineConfig{
		embedding: EmbeddingConfig{
			Provider:       "openai",
			CacheKeyPrefix: "ragline:emb:",
		},
		corpus: corpusrepo.Config{
			IndexName: "technical_docs",
			KeyPrefix: "ragline:doc:",
		},
		pipeline: pipelineuc.Config{
			RerankEnabled: true,
		},
	}
}

// Option configures the Engine.
type Option func(*engineConfig)

// WithDatabase sets the Redis/Valkey connection.
func WithDatabase(addrs []string, password string) Option {
	return func(c *engineConfig) {
		c.addrs = addrs
		c.password = password
	}
}

// WithEmbedding configures the OpenAI-compatible embedding provider.
func WithEmbedding(cfg EmbeddingConfig) Option {
	return func(c *engineConfig) {
		if cfg.Provider == "" {
			cfg.Provider = c.embedding.Provider
		}
		if cfg.CacheKeyPrefix == "" {
			cfg.CacheKeyPrefix = c.embedding.CacheKeyPrefix
		}
		c.embedding = cfg
		c.corpus.VectorDim = cfg.Dimensions
	}
}

// WithRerank enables the cross-encoder rerank pass against baseURL.
func WithRerank(baseURL string) Option {
	return func(c *engineConfig) { c.rerankURL = baseURL }
}

// WithIndex sets the dense index name and key prefix.
func WithIndex(name, keyPrefix string) Option {
	return func(c *engineConfig) {
		c.corpus.IndexName = name
		c.corpus.KeyPrefix = keyPrefix
	}
}

// WithFilterFields declares metadata keys indexed as tags in the dense
// store, enabling filtered dense search on them.
func WithFilterFields(fields ...string) Option {
	return func(c *engineConfig) { c.corpus.FilterFields = fields }
}

// WithPipeline overrides pipeline tuning (branch timeout, RRF constant,
// rerank depth).
func WithPipeline(cfg pipelineuc.Config) Option {
	return func(c *engineConfig) { c.pipeline = cfg }
}

// WithTraceCapacity bounds the trace ring buffer.
func WithTraceCapacity(n int) Option {
	return func(c *engineConfig) { c.traceCapacity = n }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithStore injects a pre-built store. The Engine will not close it.
func WithStore(s db.Store) Option {
	return func(c *engineConfig) { c.store = s }
}

// WithEmbedder injects an embedder, bypassing the OpenAI transport.
func WithEmbedder(e domain.Embedder) Option {
	return func(c *engineConfig) { c.embedder = e }
}

// WithScorer injects a rerank scorer, bypassing the HTTP client.
func WithScorer(s rerankuc.Scorer) Option {
	return func(c *engineConfig) { c.scorer = s }
}

// filtersFromMap builds a conjunction filter from a key/value map,
// processing keys in sorted order for deterministic errors.
func filtersFromMap(raw map[string]string) (filter.Expression, error) {
	if len(raw) == 0 {
		return filter.Expression{}, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]filter.Condition, 0, len(keys))
	for _, k := range keys {
		c, err := filter.NewMatch(k, raw[k])
		if err != nil {
			return filter.Expression{}, err
		}
		conds = append(conds, c)
	}
	return filter.NewExpression(conds)
}
