package generate

import "context"

// Provider is a chat completion backend. Implementations return the raw
// completion text for the given prompts.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}
