package health

import "context"

// DBPinger checks vector store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexReadiness reports whether the keyword index has a snapshot.
type IndexReadiness interface {
	Ready() bool
}

// RerankChecker reports whether the reranker admits requests.
type RerankChecker interface {
	Available(ctx context.Context) bool
}
