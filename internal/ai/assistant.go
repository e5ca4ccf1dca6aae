package ai

import (
	"context"
)

const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// Generator is the generative-text collaborator. GenerateJSON asks the
// provider for a JSON document and returns it with any code fences removed;
// callers still validate its shape.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	Model() string
}
