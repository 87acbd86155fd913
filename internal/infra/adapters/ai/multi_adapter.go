// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes completions to a provider chosen by model name and
// fails over to the remaining providers when the chosen one is unavailable.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.GenerationProvider
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.GenerationProvider,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) Name() string { return "multi" }

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

// order returns the resolved provider first, then the rest sorted by name.
func (m *MultiAIAdapter) order(model string) []string {
	first := m.resolveProvider(model)
	rest := make([]string, 0, len(m.byProvider))
	for name, p := range m.byProvider {
		if p != nil && name != first {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	if m.byProvider[first] != nil {
		return append([]string{first}, rest...)
	}
	return rest
}

func (m *MultiAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	names := m.order(req.Model)
	if len(names) == 0 {
		return adapter.CompletionResponse{}, fmt.Errorf("multi: no providers configured: %w", domain.ErrProviderUnavailable)
	}
	var lastErr error
	for i, name := range names {
		r := req
		// a model name only makes sense to the provider it resolved to
		if i > 0 || m.resolveProvider(req.Model) != name {
			r.Model = ""
		}
		resp, err := m.byProvider[name].Complete(ctx, r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrProviderUnavailable) || ctx.Err() != nil {
			break
		}
	}
	return adapter.CompletionResponse{}, lastErr
}
