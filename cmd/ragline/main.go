package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/config"
	dbRedis "github.com/ragline/ragline/internal/db/redis"
	"github.com/ragline/ragline/internal/index/keyword"
	logpkg "github.com/ragline/ragline/internal/logger"
	"github.com/ragline/ragline/internal/metrics"
	corpusrepo "github.com/ragline/ragline/internal/repository/corpus"
	denserepo "github.com/ragline/ragline/internal/repository/dense"
	"github.com/ragline/ragline/internal/repository/embcache"
	"github.com/ragline/ragline/internal/repository/tracestore"
	chiTransport "github.com/ragline/ragline/internal/transport/chi"
	openaiEmb "github.com/ragline/ragline/internal/transport/openai"
	rerankTr "github.com/ragline/ragline/internal/transport/rerank"
	"github.com/ragline/ragline/internal/usecase/health"
	ingestuc "github.com/ragline/ragline/internal/usecase/ingest"
	pipelineuc "github.com/ragline/ragline/internal/usecase/pipeline"
	rerankuc "github.com/ragline/ragline/internal/usecase/rerank"
	"github.com/ragline/ragline/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragline API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	// Embedder chain: OpenAI provider wrapped in a cache
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(base, store, cfg.Embedding.CacheKeyPrefix, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Reranker (optional)
	var reranker pipelineuc.Reranker
	var rerankChecker health.RerankChecker
	if cfg.Rerank.Enabled {
		client := rerankTr.NewClient(&rerankTr.Config{
			BaseURL:     cfg.Rerank.BaseURL,
			Timeout:     time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			MaxFailures: uint32(cfg.Rerank.MaxFailures),
			OpenFor:     time.Duration(cfg.Rerank.OpenForSec) * time.Second,
			Logger:      logger,
		})
		reranker = rerankuc.New(client, cfg.Rerank.BatchSize, cfg.Rerank.Concurrency)
		rerankChecker = client
		logger.Info("Reranker enabled", zap.String("base_url", cfg.Rerank.BaseURL))
	}

	// Retrieval branches
	holder := keyword.NewHolder()
	dense := denserepo.New(store, embedder, cfg.Corpus.IndexName, cfg.Corpus.KeyPrefix)
	corpus := corpusrepo.New(store, embedder, corpusrepo.Config{
		IndexName:       cfg.Corpus.IndexName,
		KeyPrefix:       cfg.Corpus.KeyPrefix,
		VectorDim:       cfg.Embedding.Dimensions,
		FilterFields:    cfg.Corpus.FilterFields,
		HNSWM:           cfg.Corpus.HNSWM,
		HNSWEFConstruct: cfg.Corpus.HNSWEFConstruct,
	})

	traces := tracestore.New(cfg.Trace.Capacity)

	pipeSvc := pipelineuc.New(dense, holder, reranker, traces, pipelineuc.Config{
		BranchTimeout: time.Duration(cfg.Pipeline.BranchTimeoutMS) * time.Millisecond,
		RRFK:          cfg.Pipeline.RRFK,
		RerankDepth:   cfg.Pipeline.RerankDepth,
		RerankEnabled: cfg.Rerank.Enabled,
	}, logger)
	ingestSvc := ingestuc.New(corpus, holder, logger)
	// the base provider owns HealthCheck; the cache decorator does not
	healthSvc := health.New(store, base, holder, rerankChecker)

	// Source for POST /update re-ingests
	var updateSource ingestuc.Source
	if path := os.Getenv("RAGLINE_SOURCE"); path != "" {
		updateSource = ingestuc.NewJSONLSource(path)
	}

	server := chiTransport.NewServer(pipeSvc, ingestSvc, healthSvc, traces, updateSource, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			ctx := logpkg.ContextWithLogger(r.Context(), logger)
			ctx = logpkg.With(ctx, zap.String("request_id", requestID))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			logpkg.FromContext(ctx).Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
