// Package corpus mirrors the active corpus snapshot into the vector store:
// one hash per passage holding text, metadata tags, and the embedding the
// dense branch searches over.
package corpus

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/passage"
)

const (
	upsertBatchSize  = 100
	embedConcurrency = 4
)

// store is the consumer interface for corpus writes.
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Config holds the corpus index layout.
type Config struct {
	IndexName       string
	KeyPrefix       string
	VectorDim       int
	FilterFields    []string // metadata keys declared as TAG fields
	HNSWM           int
	HNSWEFConstruct int
}

// Repo writes passages into the dense store.
type Repo struct {
	store store
	embed domain.Embedder
	cfg   Config
}

// New creates a corpus repository.
func New(s store, embed domain.Embedder, cfg Config) *Repo {
	return &Repo{store: s, embed: embed, cfg: cfg}
}

// EnsureIndex creates the FT index if it does not exist yet. The vector
// field is declared with cosine distance; the dense branch's score
// conversion depends on that metric.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{r.cfg.KeyPrefix},
		Fields: []db.IndexField{
			{Name: "__text", Type: db.IndexFieldText},
			{
				Name:              "__vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.cfg.VectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
	for _, f := range r.cfg.FilterFields {
		def.Fields = append(def.Fields, db.IndexField{Name: f, Type: db.IndexFieldTag})
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return nil
}

// Upsert embeds passages with bounded parallelism and writes them in
// pipelined batches. Passage ids map to hash keys, so re-upserting an
// unchanged id overwrites in place.
func (r *Repo) Upsert(ctx context.Context, passages []passage.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range passages {
		i := i
		g.Go(func() error {
			p := &passages[i]
			emb, err := r.embed.Embed(gctx, p.Text())
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.ID(), err)
			}
			items[i] = db.HashSetItem{
				Key:    r.cfg.KeyPrefix + p.ID(),
				Fields: passageFields(p, emb.Embedding),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for start := 0; start < len(items); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(items))
		if err := r.store.HSetMulti(ctx, items[start:end]); err != nil {
			return fmt.Errorf("write passages: %w", err)
		}
	}
	return nil
}

// Clear drops the index and deletes every stored passage.
func (r *Repo) Clear(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.cfg.IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}

	keys, err := r.store.Scan(ctx, r.cfg.KeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan passages: %w", err)
	}
	if len(keys) > 0 {
		if err := r.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete passages: %w", err)
		}
	}
	return nil
}

// Count returns the number of indexed passages.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.cfg.IndexName, "*")
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}
