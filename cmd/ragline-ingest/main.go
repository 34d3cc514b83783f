// Command ragline-ingest loads a JSONL corpus into the dense store and
// prints corpus statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/config"
	dbRedis "github.com/ragline/ragline/internal/db/redis"
	"github.com/ragline/ragline/internal/index/keyword"
	logpkg "github.com/ragline/ragline/internal/logger"
	"github.com/ragline/ragline/internal/metrics"
	corpusrepo "github.com/ragline/ragline/internal/repository/corpus"
	"github.com/ragline/ragline/internal/repository/embcache"
	openaiEmb "github.com/ragline/ragline/internal/transport/openai"
	ingestuc "github.com/ragline/ragline/internal/usecase/ingest"
)

func main() {
	var (
		envName   = flag.String("env", config.GetEnv(), "config environment name")
		source    = flag.String("source", "", "path to JSONL corpus file")
		clear     = flag.Bool("clear", false, "wipe existing passages before ingesting")
		statsOnly = flag.Bool("stats", false, "print corpus stats and exit")
	)
	flag.Parse()

	if err := run(*envName, *source, *clear, *statsOnly); err != nil {
		fmt.Fprintln(os.Stderr, "ragline-ingest:", err)
		os.Exit(1)
	}
}

func run(env, source string, clear, statsOnly bool) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(base, store, cfg.Embedding.CacheKeyPrefix, metrics.EmbeddingCacheTotal, logger)

	corpus := corpusrepo.New(store, embedder, corpusrepo.Config{
		IndexName:       cfg.Corpus.IndexName,
		KeyPrefix:       cfg.Corpus.KeyPrefix,
		VectorDim:       cfg.Embedding.Dimensions,
		FilterFields:    cfg.Corpus.FilterFields,
		HNSWM:           cfg.Corpus.HNSWM,
		HNSWEFConstruct: cfg.Corpus.HNSWEFConstruct,
	})
	svc := ingestuc.New(corpus, keyword.NewHolder(), logger)

	if statsOnly {
		stats, err := svc.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Printf("index:        %s\n", cfg.Corpus.IndexName)
		fmt.Printf("dense count:  %d\n", stats.DenseCount)
		return nil
	}

	if source == "" {
		return fmt.Errorf("-source is required (or use -stats)")
	}

	res, err := svc.Run(ctx, ingestuc.NewJSONLSource(source), clear)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	logger.Info("Corpus ingested",
		zap.String("source", source),
		zap.Int("ingested", res.Ingested),
		zap.Bool("cleared", res.Cleared),
	)
	fmt.Printf("ingested %d passages from %s (cleared=%v)\n", res.Ingested, source, res.Cleared)
	return nil
}
