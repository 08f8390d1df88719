package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
)

// MemoryStore is a thread-safe, in-process VectorStore using brute-force
// cosine similarity. It backs local development and the pipeline tests.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]memoryRecord
	seq       int // insertion counter, used as a stable tie-break
}

type memoryRecord struct {
	chunk schema.Chunk
	seq   int
}

// NewMemoryStore creates an empty store expecting vectors of the given
// dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]memoryRecord),
	}
}

// UpsertBatch inserts or overwrites records by chunk ID.
func (s *MemoryStore) UpsertBatch(ctx context.Context, chunks []*schema.Chunk) (schema.UpsertResult, error) {
	for _, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return schema.UpsertResult{}, &ragerr.DimensionMismatchError{Want: s.dimension, Got: len(c.Embedding)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		rec, ok := s.records[c.ID]
		if !ok {
			rec.seq = s.seq
			s.seq++
		}
		rec.chunk = *c
		s.records[c.ID] = rec
	}
	return schema.UpsertResult{Succeeded: len(chunks)}, nil
}

// Query scores every record against the vector and returns the topK best,
// descending by score with insertion order as a stable tie-break.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, topK int) ([]schema.Match, error) {
	if topK < 1 {
		return nil, ragerr.Validationf("topK must be at least 1, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, &ragerr.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		match schema.Match
		seq   int
	}
	all := make([]scored, 0, len(s.records))
	for _, rec := range s.records {
		c := rec.chunk
		all = append(all, scored{
			match: schema.Match{
				ID:       c.ID,
				Text:     c.Text,
				FileName: c.FileName,
				Index:    c.Index,
				Score:    cosine(vector, c.Embedding),
			},
			seq: rec.seq,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].match.Score != all[j].match.Score {
			return all[i].match.Score > all[j].match.Score
		}
		return all[i].seq < all[j].seq
	})

	if topK > len(all) {
		topK = len(all)
	}
	matches := make([]schema.Match, 0, topK)
	for i := 0; i < topK; i++ {
		matches = append(matches, all[i].match)
	}
	return matches, nil
}

// ClearAll removes every record.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]memoryRecord)
	s.seq = 0
	return nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ VectorStore = (*MemoryStore)(nil)
