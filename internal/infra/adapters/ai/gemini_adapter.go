package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/ports/adapter"
)

var (
	_ adapter.GenerationProvider = (*GeminiAdapter)(nil)
	_ adapter.Embedder           = (*GeminiAdapter)(nil)
)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	embedModel   string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel, embedModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, embedModel: embedModel}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	model := modelOrDefault(req.Model, g.defaultModel)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	// Gemini has no strict schema mode matching OpenAI's; JSON mode plus
	// caller-side validation gives the same guarantee.
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return adapter.CompletionResponse{}, classifyGeminiError(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return adapter.CompletionResponse{}, fmt.Errorf("gemini: empty response: %w", domain.ErrInvalidResponse)
	}
	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return adapter.CompletionResponse{Text: text, Provider: g.Name(), Model: model, Usage: u}, nil
}

func (g *GeminiAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: %d embeddings for %d inputs: %w", len(resp.Embeddings), len(texts), domain.ErrInvalidResponse)
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini: nil embedding at %d: %w", i, domain.ErrInvalidResponse)
		}
		out[i] = e.Values
	}
	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("gemini http %d: %w", apiErr.Code, domain.ErrProviderUnavailable)
		}
		return fmt.Errorf("gemini http %d: %w", apiErr.Code, domain.ErrProviderError)
	}
	return fmt.Errorf("gemini: %v: %w", err, domain.ErrProviderUnavailable)
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
