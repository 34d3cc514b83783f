package request

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength = 1024
	DefaultTopK    = 20
	MaxTopK        = 200
	DefaultLimit   = 5
	MaxLimit       = 50
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	filters    filter.Expression
	topK       int
	limit      int
	rerank     bool
}

// New validates and normalizes search parameters. Validation failures wrap
// domain.ErrInvalidQuery. Defaults: mode=hybrid, topK=20, limit=5,
// rerank=true; limits are clamped rather than rejected.
func New(
	query string,
	m mode.Mode,
	filters filter.Expression,
	topK, limit int,
	rerank bool,
) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: unrecognized search mode %q", domain.ErrInvalidQuery, m)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if limit > topK {
		limit = topK
	}

	return Request{
		query:      query,
		searchMode: m,
		filters:    filters,
		topK:       topK,
		limit:      limit,
		rerank:     rerank,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the retrieval strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Filters returns the metadata pre-filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// TopK returns the per-branch candidate count.
func (r *Request) TopK() int { return r.topK }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Rerank reports whether the second-pass re-ranking is requested.
func (r *Request) Rerank() bool { return r.rerank }
