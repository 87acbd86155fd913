package adapter

import "context"

// Usage for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest asks a generation provider for one answer. When Schema is
// set the provider must use its structured-output / JSON mode.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	SchemaName  string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int
}

type CompletionResponse struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// GenerationProvider is the port for LLM completion. Failures are reported as
// domain.ErrProviderUnavailable or domain.ErrProviderError.
type GenerationProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Embedder turns texts into fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TokenCounter estimates prompt tokens for budget checks.
type TokenCounter interface {
	Count(text string) int
}
