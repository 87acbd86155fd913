package ai

import (
	"context"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/ports/adapter"
)

var (
	_ adapter.GenerationProvider = (*NoopAIAdapter)(nil)
	_ adapter.Embedder           = (*NoopAIAdapter)(nil)
)

// NoopAIAdapter stands in when no provider key is configured. Every call
// reports the provider as unavailable so callers take their fallback paths.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

func (a *NoopAIAdapter) Name() string { return "none" }

func (a *NoopAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	return adapter.CompletionResponse{}, domain.ErrProviderUnavailable
}

func (a *NoopAIAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrProviderUnavailable
}
