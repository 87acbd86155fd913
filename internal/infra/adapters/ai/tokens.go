package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"incident-analyzer/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts tokens with the model's BPE encoding when it can be
// loaded and falls back to a four-characters-per-token estimate otherwise.
type TokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

// EstimateCounter never loads an encoding.
func EstimateCounter() *TokenCounter {
	tc := &TokenCounter{}
	tc.once.Do(func() {})
	return tc
}

func (t *TokenCounter) load() {
	t.once.Do(func() {
		if t.model != "" {
			if enc, err := tiktoken.EncodingForModel(t.model); err == nil {
				t.enc = enc
				return
			}
		}
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			t.enc = enc
		}
	})
}

func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
