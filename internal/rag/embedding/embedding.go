package embedding

import "context"

// TaskType tags what an embedding will be used for. Retrieval-tuned models
// produce different vectors for indexed documents and for queries.
type TaskType string

const (
	// TaskDocument marks text being indexed for later retrieval.
	TaskDocument TaskType = "document"
	// TaskQuery marks a question being embedded at query time.
	TaskQuery TaskType = "query"
)

// Embedder turns one text string into a fixed-length vector within a
// bounded timeout. Implementations do not retry; retry policy belongs to
// the call site so latency bounds stay explicit at each layer.
type Embedder interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)

	// Dimension returns the fixed vector length this embedder produces.
	Dimension() int
}
