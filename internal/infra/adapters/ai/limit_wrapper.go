package ai

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/metrics"
)

// Compile-time check
var _ adapter.GenerationProvider = (*limitedAI)(nil)

// Limits bounds outbound provider traffic. Zero values disable each limit.
type Limits struct {
	MaxConcurrent int
	PerSecond     float64
	Timeout       time.Duration
}

type limitedAI struct {
	inner   adapter.GenerationProvider
	sem     chan struct{}
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimitedAI wraps a provider with a concurrency cap, a token-bucket rate
// limit, a per-call timeout and call metrics.
func NewLimitedAI(inner adapter.GenerationProvider, l Limits) adapter.GenerationProvider {
	if inner == nil {
		return nil
	}
	return &limitedAI{
		inner:   inner,
		sem:     newSem(l.MaxConcurrent),
		limiter: newLimiter(l.PerSecond),
		timeout: l.Timeout,
	}
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	release, err := acquire(ctx, l.sem, l.limiter)
	if err != nil {
		metrics.IncThrottled(l.inner.Name(), "complete")
		return adapter.CompletionResponse{}, fmt.Errorf("%s: %v: %w", l.inner.Name(), err, domain.ErrProviderUnavailable)
	}
	defer release()

	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	resp, err := l.inner.Complete(ctx, req)
	metrics.ObserveAICall(l.inner.Name(), "complete", time.Since(start), err == nil)
	if err == nil {
		metrics.ObserveTokens(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, err
}

type limitedEmbedder struct {
	name    string
	inner   adapter.Embedder
	sem     chan struct{}
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimitedEmbedder applies the same limits to an embedding client.
func NewLimitedEmbedder(name string, inner adapter.Embedder, l Limits) adapter.Embedder {
	if inner == nil {
		return nil
	}
	return &limitedEmbedder{
		name:    name,
		inner:   inner,
		sem:     newSem(l.MaxConcurrent),
		limiter: newLimiter(l.PerSecond),
		timeout: l.Timeout,
	}
}

func (l *limitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	release, err := acquire(ctx, l.sem, l.limiter)
	if err != nil {
		metrics.IncThrottled(l.name, "embed")
		return nil, fmt.Errorf("%s: %v: %w", l.name, err, domain.ErrProviderUnavailable)
	}
	defer release()

	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	out, err := l.inner.Embed(ctx, texts)
	metrics.ObserveAICall(l.name, "embed", time.Since(start), err == nil)
	return out, err
}

func newSem(n int) chan struct{} {
	if n <= 0 {
		return nil
	}
	return make(chan struct{}, n)
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func acquire(ctx context.Context, sem chan struct{}, lim *rate.Limiter) (func(), error) {
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if sem == nil {
		return func() {}, nil
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
