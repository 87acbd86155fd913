//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakeProvider returns a canned response or error and records requests.
type fakeProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	last  adapter.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return adapter.CompletionResponse{}, f.err
	}
	return adapter.CompletionResponse{Text: f.text, Provider: "fake", Model: "fake-1"}, nil
}

type fakeEmbedder struct {
	vecs [][]float32
	err  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs, nil
}

type fakeIndex struct {
	matches []adapter.IndexMatch
	err     error
	lastK   int
}

func (f *fakeIndex) Upsert(ctx context.Context, doc model.IncidentDocument, vector []float32) error {
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, k int) ([]adapter.IndexMatch, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) { return len(f.matches), nil }

func file(name string, lines ...string) model.SourceFile {
	return model.SourceFile{Name: name, Content: []byte(strings.Join(lines, "\n"))}
}

func fillerLines(n int, format string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(format, i)
	}
	return out
}

func sig(source string, no int, text string) model.SignalLine {
	score, markers := scoreLine(text)
	return model.SignalLine{Source: source, LineNo: no, Text: text, Score: score, Markers: markers}
}

type quarterTokens struct{}

func (quarterTokens) Count(text string) int { return len(text) / 4 }
