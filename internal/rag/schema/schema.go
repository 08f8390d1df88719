package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is a bounded substring of a document's extracted text. It is the
// unit of embedding and storage and is immutable once created.
type Chunk struct {
	// ID is the deterministic identifier used for upserts.
	ID string

	// Text is the chunk's content.
	Text string

	// FileName is the declared name of the source document.
	FileName string

	// Index is the 0-based position of the chunk within the document,
	// assigned in source order.
	Index int

	// Embedding is the vector representation of Text. Empty until the
	// embedding step of the ingestion pipeline fills it in.
	Embedding []float32
}

// NewChunk builds a Chunk and assigns its deterministic ID, so that
// re-ingesting identical content upserts the same record instead of
// duplicating it.
func NewChunk(fileName string, index int, text string) *Chunk {
	return &Chunk{
		ID:       ChunkID(fileName, index, text),
		Text:     text,
		FileName: fileName,
		Index:    index,
	}
}

// ChunkID derives the storage identifier from the file name, chunk index
// and content.
func ChunkID(fileName string, index int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s", fileName, index, text)
	return hex.EncodeToString(h.Sum(nil))
}

// Match is a stored record returned from a similarity query, annotated
// with a cosine similarity score (higher = more relevant).
type Match struct {
	ID       string  `json:"-"`
	Text     string  `json:"-"`
	FileName string  `json:"filename"`
	Index    int     `json:"chunk_index"`
	Score    float32 `json:"score"`
}

// Answer is the result of the retrieval pipeline: generated text plus the
// matches actually used as context, most relevant first.
type Answer struct {
	Text    string
	Sources []Match
}

// UpsertResult reports the outcome of a batched upsert. Failed records are
// reported, never silently dropped.
type UpsertResult struct {
	Succeeded int
	Failed    int
}

// Add folds another batch's result into this one.
func (r *UpsertResult) Add(other UpsertResult) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
}
