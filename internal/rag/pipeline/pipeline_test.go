package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ragbase/internal/rag/chunker"
	"ragbase/internal/rag/embedding"
	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
	"ragbase/internal/rag/vectorstore"
	"ragbase/pkg/logger"
)

const testDim = 4

// fakeEmbedder returns a fixed vector and can be armed to fail from the
// n-th call onwards.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failAt  int // 1-based call number to start failing at; 0 = never
	failErr error
	vec     []float32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, task embedding.TaskType) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls >= f.failAt {
		return nil, f.failErr
	}
	out := make([]float32, len(f.vec))
	copy(out, f.vec)
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyStore wraps the in-memory store and reports whole batches as failed
// from a given batch number onwards, the way the Milvus adapter reports a
// sub-batch that exhausted its retries.
type flakyStore struct {
	vectorstore.VectorStore
	mu         sync.Mutex
	batches    int
	failFrom   int // 1-based batch number to fail from; 0 = never
	queryCalls int
}

func (s *flakyStore) UpsertBatch(ctx context.Context, chunks []*schema.Chunk) (schema.UpsertResult, error) {
	s.mu.Lock()
	s.batches++
	fail := s.failFrom > 0 && s.batches >= s.failFrom
	s.mu.Unlock()
	if fail {
		return schema.UpsertResult{Failed: len(chunks)}, nil
	}
	return s.VectorStore.UpsertBatch(ctx, chunks)
}

func (s *flakyStore) Query(ctx context.Context, vector []float32, topK int) ([]schema.Match, error) {
	s.mu.Lock()
	s.queryCalls++
	s.mu.Unlock()
	return s.VectorStore.Query(ctx, vector, topK)
}

// fakeGenerator records the prompt it was given.
type fakeGenerator struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newIngestion(t *testing.T, emb *fakeEmbedder, store vectorstore.VectorStore, batchSize int) *IngestionPipeline {
	t.Helper()
	ck, err := chunker.New(500, 100, 1000)
	if err != nil {
		t.Fatalf("chunker.New error = %v", err)
	}
	return NewIngestionPipeline(ck, emb, store, batchSize, 2, 5*1024*1024, logger.New("test"))
}

func TestIngest_ThreeChunkDocument(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	p := newIngestion(t, emb, store, 50)

	data := []byte(strings.Repeat("abcdefghij", 120)) // 1200 characters
	report, err := p.Ingest(context.Background(), "doc.txt", data)
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if report.ChunksAdded != 3 {
		t.Errorf("Expected chunks_added=3, got %d", report.ChunksAdded)
	}

	count, _ := store.Count(context.Background())
	if count != 3 {
		t.Errorf("Expected 3 stored records, got %d", count)
	}
}

func TestIngest_ReingestIsIdempotent(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	p := newIngestion(t, emb, store, 50)

	data := []byte(strings.Repeat("abcdefghij", 120))
	for i := 0; i < 2; i++ {
		if _, err := p.Ingest(context.Background(), "doc.txt", data); err != nil {
			t.Fatalf("Ingest #%d error = %v", i+1, err)
		}
	}

	count, _ := store.Count(context.Background())
	if count != 3 {
		t.Errorf("Re-ingesting the same document must hit the same ids: expected 3 records, got %d", count)
	}
}

func TestIngest_WhitespaceOnlyDocument(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	p := newIngestion(t, emb, store, 50)

	report, err := p.Ingest(context.Background(), "blank.txt", []byte("   \n\t  "))
	if err != nil {
		t.Fatalf("Whitespace-only document should not be an error, got %v", err)
	}
	if report.ChunksAdded != 0 {
		t.Errorf("Expected chunks_added=0, got %d", report.ChunksAdded)
	}
	if emb.callCount() != 0 {
		t.Errorf("Expected no embedding calls, got %d", emb.callCount())
	}
}

func TestIngest_RejectsUnsupportedFormat(t *testing.T) {
	emb := newFakeEmbedder()
	p := newIngestion(t, emb, vectorstore.NewMemoryStore(testDim), 50)

	_, err := p.Ingest(context.Background(), "image.png", []byte("not really"))
	var ve *ragerr.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
	if emb.callCount() != 0 {
		t.Errorf("Expected no embedding calls for rejected upload, got %d", emb.callCount())
	}
}

func TestIngest_RejectsOversizedFile(t *testing.T) {
	emb := newFakeEmbedder()
	ck, _ := chunker.New(500, 100, 1000)
	p := NewIngestionPipeline(ck, emb, vectorstore.NewMemoryStore(testDim), 50, 2, 10 /* bytes */, logger.New("test"))

	_, err := p.Ingest(context.Background(), "doc.txt", []byte("twelve bytes!"))
	var ve *ragerr.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError for oversized file, got %v", err)
	}
}

func TestIngest_EmbeddingTimeoutAbortsAfterCommittedBatches(t *testing.T) {
	emb := newFakeEmbedder()
	emb.failAt = 3
	emb.failErr = &ragerr.TimeoutError{Stage: ragerr.StageEmbedding, Err: context.DeadlineExceeded}

	store := vectorstore.NewMemoryStore(testDim)
	p := newIngestion(t, emb, store, 2) // batches of 2 over 3 chunks

	data := []byte(strings.Repeat("abcdefghij", 120))
	report, err := p.Ingest(context.Background(), "doc.txt", data)
	if !ragerr.IsTimeout(err) {
		t.Fatalf("Expected a timeout error, got %v", err)
	}
	if report.ChunksAdded != 2 {
		t.Errorf("Expected chunks_added to reflect the committed first batch (2), got %d", report.ChunksAdded)
	}

	count, _ := store.Count(context.Background())
	if count != 2 {
		t.Errorf("Expected 2 committed records, got %d", count)
	}
}

func TestIngest_PartialUpsertIsAWarningNotAFailure(t *testing.T) {
	emb := newFakeEmbedder()
	store := &flakyStore{VectorStore: vectorstore.NewMemoryStore(testDim), failFrom: 2}
	p := newIngestion(t, emb, store, 2)

	data := []byte(strings.Repeat("abcdefghij", 120))
	report, err := p.Ingest(context.Background(), "doc.txt", data)
	if err != nil {
		t.Fatalf("Partial upsert must not fail the upload, got %v", err)
	}
	if report.ChunksAdded != 2 {
		t.Errorf("Expected 2 chunks stored, got %d", report.ChunksAdded)
	}
	if report.Warning == "" {
		t.Errorf("Expected a partial-failure warning in the report")
	}
}

func newRetrieval(emb *fakeEmbedder, store vectorstore.VectorStore, gen *fakeGenerator, contextBudget int) *RetrievalPipeline {
	return NewRetrievalPipeline(emb, store, gen, 3, 10, contextBudget, logger.New("test"))
}

func seedStore(t *testing.T, store vectorstore.VectorStore, vecs map[string][]float32) {
	t.Helper()
	index := 0
	var chunks []*schema.Chunk
	for text, vec := range vecs {
		c := schema.NewChunk("seed.txt", index, text)
		c.Embedding = vec
		chunks = append(chunks, c)
		index++
	}
	if _, err := store.UpsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("seed upsert error = %v", err)
	}
}

func TestAsk_EmptyStoreSaysNoRelevantInformation(t *testing.T) {
	emb := newFakeEmbedder()
	gen := &fakeGenerator{answer: "should not be used"}
	p := newRetrieval(emb, vectorstore.NewMemoryStore(testDim), gen, 12000)

	answer, err := p.Ask(context.Background(), "anything?", 3)
	if err != nil {
		t.Fatalf("Ask error = %v", err)
	}
	if answer.Text != NoRelevantAnswer {
		t.Errorf("Expected %q, got %q", NoRelevantAnswer, answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Expected empty sources, got %d", len(answer.Sources))
	}
	if gen.calls != 0 {
		t.Errorf("Generator must not be called on an empty result, got %d calls", gen.calls)
	}
}

func TestAsk_TopKOutOfRangeMakesNoExternalCalls(t *testing.T) {
	emb := newFakeEmbedder()
	store := &flakyStore{VectorStore: vectorstore.NewMemoryStore(testDim)}
	gen := &fakeGenerator{answer: "nope"}
	p := newRetrieval(emb, store, gen, 12000)

	_, err := p.Ask(context.Background(), "question", 11) // maxTopK is 10
	var ve *ragerr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if emb.callCount() != 0 || store.queryCalls != 0 || gen.calls != 0 {
		t.Errorf("Expected zero external calls, got embed=%d query=%d generate=%d",
			emb.callCount(), store.queryCalls, gen.calls)
	}
}

func TestAsk_RejectsEmptyQuestion(t *testing.T) {
	p := newRetrieval(newFakeEmbedder(), vectorstore.NewMemoryStore(testDim), &fakeGenerator{}, 12000)

	_, err := p.Ask(context.Background(), "   ", 3)
	var ve *ragerr.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError for blank question, got %v", err)
	}
}

func TestAsk_GroundedAnswerWithOrderedSources(t *testing.T) {
	emb := newFakeEmbedder() // query vector is (1,0,0,0)
	store := vectorstore.NewMemoryStore(testDim)
	seedStore(t, store, map[string][]float32{
		"most relevant chunk":  {1, 0, 0, 0},
		"less relevant chunk":  {0.7, 0.7, 0, 0},
		"least relevant chunk": {0, 1, 0, 0},
	})
	gen := &fakeGenerator{answer: "grounded answer"}
	p := newRetrieval(emb, store, gen, 12000)

	answer, err := p.Ask(context.Background(), "which chunk?", 3)
	if err != nil {
		t.Fatalf("Ask error = %v", err)
	}
	if answer.Text != "grounded answer" {
		t.Errorf("Expected the generator's answer, got %q", answer.Text)
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(answer.Sources))
	}
	for i := 0; i+1 < len(answer.Sources); i++ {
		if answer.Sources[i].Score < answer.Sources[i+1].Score {
			t.Errorf("Sources not ordered by descending score at %d", i)
		}
	}
	if !strings.Contains(gen.prompt, "most relevant chunk") || !strings.Contains(gen.prompt, "which chunk?") {
		t.Errorf("Prompt is missing context or question:\n%s", gen.prompt)
	}
}

func TestAsk_ContextBudgetDropsLowestScoring(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	seedStore(t, store, map[string][]float32{
		"best chunk":  {1, 0, 0, 0},
		"worst chunk": {0, 1, 0, 0},
	})
	gen := &fakeGenerator{answer: "ok"}
	// Budget fits the best chunk only.
	p := newRetrieval(emb, store, gen, len("best chunk")+1)

	answer, err := p.Ask(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Ask error = %v", err)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("Expected the budget to keep 1 source, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Text != "best chunk" {
		t.Errorf("Expected the best chunk to survive the budget, got %q", answer.Sources[0].Text)
	}
	if strings.Contains(gen.prompt, "worst chunk") {
		t.Errorf("Dropped chunk leaked into the prompt")
	}
}

func TestAsk_ContextBudgetCountsCharactersNotBytes(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	best := strings.Repeat("日", 10) // 10 characters, 30 bytes
	seedStore(t, store, map[string][]float32{
		best:         {1, 0, 0, 0},
		"also asked": {0.7, 0.7, 0, 0},
	})
	gen := &fakeGenerator{answer: "ok"}
	// 20 characters fit both chunks; their combined byte length does not.
	p := newRetrieval(emb, store, gen, 20)

	answer, err := p.Ask(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Ask error = %v", err)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("Expected both chunks within the character budget, got %d sources", len(answer.Sources))
	}
}

func TestAsk_GenerationFailureIsDistinctFromRetrieval(t *testing.T) {
	emb := newFakeEmbedder()
	store := vectorstore.NewMemoryStore(testDim)
	seedStore(t, store, map[string][]float32{"a chunk": {1, 0, 0, 0}})
	gen := &fakeGenerator{err: ragerr.Wrap(ragerr.StageGeneration, errors.New("model unavailable"))}
	p := newRetrieval(emb, store, gen, 12000)

	_, err := p.Ask(context.Background(), "q", 1)
	var se *ragerr.ExternalServiceError
	if !errors.As(err, &se) {
		t.Fatalf("Expected ExternalServiceError, got %v", err)
	}
	if se.Stage != ragerr.StageGeneration {
		t.Errorf("Expected the generation stage, got %s", se.Stage)
	}
}
