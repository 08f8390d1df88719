package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ragbase/internal/llm"
	"ragbase/internal/rag/embedding"
	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
	"ragbase/internal/rag/vectorstore"
	"ragbase/pkg/logger"
)

// NoRelevantAnswer is returned verbatim when the store holds nothing
// similar enough to ground an answer.
const NoRelevantAnswer = "No relevant information found."

// RetrievalPipeline turns a question into a grounded answer with cited
// sources.
type RetrievalPipeline struct {
	embedder      embedding.Embedder
	store         vectorstore.VectorStore
	generator     llm.Generator
	defaultTopK   int
	maxTopK       int
	contextBudget int
	log           *logger.Logger
}

// NewRetrievalPipeline wires the retrieval stages together. contextBudget
// caps the assembled context length in characters.
func NewRetrievalPipeline(
	embedder embedding.Embedder,
	store vectorstore.VectorStore,
	generator llm.Generator,
	defaultTopK, maxTopK, contextBudget int,
	log *logger.Logger,
) *RetrievalPipeline {
	return &RetrievalPipeline{
		embedder:      embedder,
		store:         store,
		generator:     generator,
		defaultTopK:   defaultTopK,
		maxTopK:       maxTopK,
		contextBudget: contextBudget,
		log:           log,
	}
}

// Ask validates the request, retrieves the topK most similar chunks and
// generates an answer grounded in them. topK of 0 means "use the default";
// out-of-range values are rejected rather than clamped, so callers are
// never silently given a different breadth than they asked for. Validation
// happens before any external call.
func (p *RetrievalPipeline) Ask(ctx context.Context, question string, topK int) (*schema.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ragerr.Validationf("question must not be empty")
	}
	if topK == 0 {
		topK = p.defaultTopK
	}
	if topK < 1 || topK > p.maxTopK {
		return nil, ragerr.Validationf("top_k must be between 1 and %d, got %d", p.maxTopK, topK)
	}

	// Embed the question for retrieval.
	vector, err := p.embedder.Embed(ctx, question, embedding.TaskQuery)
	if err != nil {
		return nil, err
	}

	matches, err := p.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		p.log.Info("Query matched nothing in the vector store")
		return &schema.Answer{Text: NoRelevantAnswer, Sources: []schema.Match{}}, nil
	}

	used := p.fitContextBudget(matches)
	prompt := buildPrompt(question, used)

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		// Generation failures stay distinct from retrieval failures so
		// callers can tell "found nothing" from "could not answer".
		return nil, err
	}

	return &schema.Answer{Text: answer, Sources: used}, nil
}

// fitContextBudget drops the lowest-scoring matches until the combined
// chunk text fits the generation-input budget. The budget counts
// characters, the same unit the chunker windows in. Chunks are never
// cut in half, and the best match is always kept even if it alone
// exceeds the budget, since an answer with some grounding beats none.
func (p *RetrievalPipeline) fitContextBudget(matches []schema.Match) []schema.Match {
	total := 0
	kept := 0
	for _, m := range matches {
		size := utf8.RuneCountInString(m.Text)
		if kept > 0 && total+size > p.contextBudget {
			break
		}
		total += size
		kept++
	}
	if kept < len(matches) {
		p.log.Info(fmt.Sprintf("Context budget dropped %d of %d matches", len(matches)-kept, len(matches)))
	}
	return matches[:kept]
}

// buildPrompt assembles the grounded-generation prompt, most relevant
// context first.
func buildPrompt(question string, matches []schema.Match) string {
	var sb strings.Builder
	sb.WriteString("Answer based ONLY on the context below.\n")
	sb.WriteString("If the answer is not found in the context, say so clearly.\n\nContext:\n")
	for _, m := range matches {
		sb.WriteString(m.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:\n")
	return sb.String()
}
