package ai

import "context"

// Provider is the external generative model. Implementations return
// *ProviderError for transient failures.
type Provider interface {
	Generate(ctx context.Context, modelID, prompt string) (string, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, modelID, prompt string) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	return f(ctx, modelID, prompt)
}
