// Package retriever fetches context passages for a question. Its one job
// beyond delegating to the store is the fallback policy: retrieval trouble
// degrades generation to a non-context answer instead of aborting the
// interactive flow.
package retriever

import (
	"context"
	"log/slog"

	"ragchat/internal/domain"
)

// StoreRetriever wraps a collection handle with the degrade-on-failure
// policy. The collection may be nil when the store was unreachable at
// startup; every retrieval then degrades.
type StoreRetriever struct {
	collection domain.ChunkStore
	log        *slog.Logger
}

func New(collection domain.ChunkStore, log *slog.Logger) *StoreRetriever {
	if log == nil {
		log = slog.Default()
	}
	return &StoreRetriever{collection: collection, log: log}
}

// Retrieve returns up to k passages for the question, most relevant first.
// It never fails hard: an unavailable store or failed query yields an empty
// result flagged as degraded, with the reason surfaced for the caller.
func (r *StoreRetriever) Retrieve(ctx context.Context, question string, k int) domain.RetrievalResult {
	if k < 1 {
		k = 1
	}
	if r.collection == nil {
		return domain.RetrievalResult{Degraded: true, Reason: "vector store unavailable"}
	}
	passages, err := r.collection.Query(ctx, question, k)
	if err != nil {
		r.log.Warn("retrieval degraded to empty context", "error", err)
		return domain.RetrievalResult{Degraded: true, Reason: err.Error()}
	}
	return domain.RetrievalResult{Passages: passages}
}
