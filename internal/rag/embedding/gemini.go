package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ragbase/internal/rag/ragerr"
)

// GeminiEmbedder is an Embedder backed by the Google GenAI embedding API.
// It holds one model handle per task type because the task type is a
// property of the model handle, not of the request.
type GeminiEmbedder struct {
	docModel   *genai.EmbeddingModel
	queryModel *genai.EmbeddingModel
	dimension  int
	timeout    time.Duration
}

// NewGeminiEmbedder creates a GeminiEmbedder for the given model. Every
// call is bounded by timeout; dimension is the vector length the
// configured model and index agree on.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dimension int, timeout time.Duration) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cannot create GenAI client: %w", err)
	}

	docModel := client.EmbeddingModel(modelName)
	docModel.TaskType = genai.TaskTypeRetrievalDocument

	queryModel := client.EmbeddingModel(modelName)
	queryModel.TaskType = genai.TaskTypeRetrievalQuery

	return &GeminiEmbedder{
		docModel:   docModel,
		queryModel: queryModel,
		dimension:  dimension,
		timeout:    timeout,
	}, nil
}

// Embed generates the embedding vector for text. A call exceeding the
// configured timeout surfaces as a TimeoutError; any other failure,
// including a vector of unexpected length, surfaces as an
// ExternalServiceError. There is no retry here.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	model := e.docModel
	if task == TaskQuery {
		model = e.queryModel
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := model.EmbedContent(callCtx, genai.Text(text))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.StageEmbedding, err)
	}
	if res == nil || res.Embedding == nil {
		return nil, ragerr.Wrap(ragerr.StageEmbedding, fmt.Errorf("embedding response is empty"))
	}

	values := res.Embedding.Values
	if len(values) != e.dimension {
		return nil, ragerr.Wrap(ragerr.StageEmbedding,
			fmt.Errorf("model returned a %d-dimensional vector, index expects %d", len(values), e.dimension))
	}
	return values, nil
}

// Dimension returns the configured vector length.
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

var _ Embedder = (*GeminiEmbedder)(nil)
