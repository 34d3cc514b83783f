package keyword

import (
	"context"
	"sync/atomic"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/passage"
	"github.com/ragline/ragline/internal/domain/search/result"
)

// Holder publishes the active index. Rebuilds construct a new index off to
// the side and install it with a single pointer swap, so concurrent
// searches always resolve one consistent index.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder creates an empty holder. Search fails with domain.ErrNotReady
// until the first Rebuild.
func NewHolder() *Holder {
	return &Holder{}
}

// Rebuild indexes the snapshot and atomically swaps it in.
func (h *Holder) Rebuild(snap *passage.Snapshot) *Index {
	ix := Build(snap)
	h.current.Store(ix)
	return ix
}

// Ready reports whether an index has been built.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Version returns the active snapshot version, or 0 when not ready.
func (h *Holder) Version() uint64 {
	ix := h.current.Load()
	if ix == nil {
		return 0
	}
	return ix.Version()
}

// Search resolves the active index once and queries it. The context is
// accepted for interface symmetry with the dense branch; the in-memory
// search itself does not block.
func (h *Holder) Search(_ context.Context, query string, limit int) ([]result.Candidate, error) {
	ix := h.current.Load()
	if ix == nil {
		return nil, domain.ErrNotReady
	}
	return ix.Search(query, limit), nil
}
