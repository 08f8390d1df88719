// Package vectorstore defines the storage contract for embedded chunks
// and provides a Milvus-backed implementation plus an in-memory one for
// local development and tests.
package vectorstore

import (
	"context"

	"ragbase/internal/rag/schema"
)

// VectorStore stores embedded chunks and answers top-K similarity
// queries. Every vector passed in must have the store's configured
// dimension; a mismatch is fatal and never retried.
type VectorStore interface {
	// UpsertBatch writes the chunks by their deterministic IDs. Each
	// record either succeeds or fails independently; failures after
	// retries are reported in the result, never silently dropped. The
	// returned error is reserved for conditions that make continuing
	// pointless (dimension mismatch, cancelled context).
	UpsertBatch(ctx context.Context, chunks []*schema.Chunk) (schema.UpsertResult, error)

	// Query returns up to topK matches ordered by descending cosine
	// similarity. topK must be at least 1; the configured upper bound
	// is enforced by the retrieval layer before the store is reached.
	// An empty store yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]schema.Match, error)

	// ClearAll deletes every stored record. Irreversible; confirmation,
	// if any, belongs to the boundary layer.
	ClearAll(ctx context.Context) error

	// Count returns the number of stored records, used as a liveness
	// signal by the health endpoint.
	Count(ctx context.Context) (int64, error)
}
