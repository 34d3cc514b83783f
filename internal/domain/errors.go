package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidQuery signals a query rejected before any retrieval work.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotReady signals that the index or corpus snapshot is not built yet.
	ErrNotReady = errors.New("index not ready")
	// ErrRetrievalUnavailable signals that every retrieval branch failed.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrRerankerUnavailable signals a reranker provider failure.
	// Never surfaced to callers: the pipeline downgrades to fused order.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
)

// BranchError wraps a retrieval branch failure with enough context
// (which branch, what timeout) for the trace to explain the outcome.
type BranchError struct {
	Branch  string
	Timeout time.Duration
	Err     error
}

func (e *BranchError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s branch (timeout %s): %s", e.Branch, e.Timeout, e.Err)
	}
	return fmt.Sprintf("%s branch: %s", e.Branch, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// NewBranchError creates a branch failure error.
func NewBranchError(branch string, timeout time.Duration, err error) error {
	return &BranchError{Branch: branch, Timeout: timeout, Err: err}
}
