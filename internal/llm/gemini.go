package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ragbase/internal/rag/ragerr"
)

// Gemini is a Generator backed by the Google GenAI generation API.
type Gemini struct {
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini client for the given generation model. Every
// Generate call is bounded by timeout.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cannot create GenAI client: %w", err)
	}
	return &Gemini{
		model:   client.GenerativeModel(modelName),
		timeout: timeout,
	}, nil
}

// Generate sends the prompt and returns the concatenated text parts of the
// first candidate. Timeouts and other failures surface under the
// generation stage so callers can tell them apart from retrieval errors.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return "", ragerr.Wrap(ragerr.StageGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ragerr.Wrap(ragerr.StageGeneration, fmt.Errorf("model returned no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ragerr.Wrap(ragerr.StageGeneration, fmt.Errorf("model returned no text parts"))
	}
	return sb.String(), nil
}

var _ Generator = (*Gemini)(nil)
