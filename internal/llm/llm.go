package llm

import "context"

// Generator is the interface for a model that can generate an answer from
// a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
