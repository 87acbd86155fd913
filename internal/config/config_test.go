//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("OPENAI_CHAT_MODEL", "")
	t.Setenv("EMBED_MODEL", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("expected missing file to be tolerated, got %v", err)
	}
	if cfg.AI.Provider != "none" {
		t.Errorf("expected provider none without keys, got %q", cfg.AI.Provider)
	}
	if cfg.Pipeline.MaxLinesPerFile != 200 || cfg.Pipeline.MaxTopLines != 50 || cfg.Pipeline.MaxQueryChars != 4000 {
		t.Errorf("unexpected pipeline limits: %+v", cfg.Pipeline)
	}
	if cfg.Index.TopK != 3 || cfg.Index.Backend != "memory" {
		t.Errorf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Errorf("expected 30s ai timeout, got %v", cfg.AI.Timeout)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be carried into runtime config")
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	path := writeConfig(t, `
log:
  level: debug
ai:
  chat_model: gpt-4.1-mini
pipeline:
  workers: 2
  max_top_lines: 10
`)
	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.OpenAIKey != "sk-env" || cfg.AI.Provider != "openai" {
		t.Errorf("expected env key to select openai, got %q/%q", cfg.AI.OpenAIKey, cfg.AI.Provider)
	}
	if cfg.AI.ChatModel != "gpt-4.1-mini" {
		t.Errorf("file value should win over defaults, got %q", cfg.AI.ChatModel)
	}
	if cfg.Pipeline.Workers != 2 || cfg.Pipeline.MaxTopLines != 10 || cfg.Pipeline.QueueSize != 8 {
		t.Errorf("unexpected pipeline: %+v", cfg.Pipeline)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai without key", "ai:\n  provider: openai\n", "openai_key"},
		{"unknown provider", "ai:\n  provider: llama\n", "not supported"},
		{"redis without url", "index:\n  backend: redis\n", "redis.url"},
		{"reference score above one", "pipeline:\n  min_reference_score: 1.5\n", "min_reference_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "log: [unclosed"), false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_GeminiModels(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("OPENAI_CHAT_MODEL", "")
	t.Setenv("EMBED_MODEL", "")

	t.Run("should keep gemini models apart from openai ones in multi mode", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "ai:\n  provider: multi\n  gemini_key: g-key\n"), false)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.AI.ChatModel != "gpt-4o-mini" || cfg.AI.EmbedModel != "text-embedding-3-small" {
			t.Errorf("unexpected primary models %q %q", cfg.AI.ChatModel, cfg.AI.EmbedModel)
		}
		if cfg.AI.GeminiChatModel != "gemini-2.0-flash" || cfg.AI.GeminiEmbedModel != "text-embedding-004" {
			t.Errorf("unexpected gemini models %q %q", cfg.AI.GeminiChatModel, cfg.AI.GeminiEmbedModel)
		}
	})

	t.Run("should follow chat_model when gemini is the provider", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "ai:\n  provider: gemini\n  gemini_key: g-key\n  chat_model: gemini-2.5-pro\n"), false)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.AI.GeminiChatModel != "gemini-2.5-pro" || cfg.AI.GeminiEmbedModel != "text-embedding-004" {
			t.Errorf("unexpected gemini models %q %q", cfg.AI.GeminiChatModel, cfg.AI.GeminiEmbedModel)
		}
	})

	t.Run("should honour explicit gemini models", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "ai:\n  provider: multi\n  openai_key: sk\n  gemini_key: g\n  gemini_chat_model: gemini-1.5-pro\n  gemini_embed_model: gemini-embedding-001\n"), false)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.AI.GeminiChatModel != "gemini-1.5-pro" || cfg.AI.GeminiEmbedModel != "gemini-embedding-001" {
			t.Errorf("unexpected gemini models %q %q", cfg.AI.GeminiChatModel, cfg.AI.GeminiEmbedModel)
		}
	})
}
