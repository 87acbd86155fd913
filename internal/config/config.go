// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AIConfig struct {
	Provider         string        `yaml:"provider"` // openai | gemini | multi | none
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	ChatModel        string        `yaml:"chat_model"`
	EmbedModel       string        `yaml:"embed_model"`
	GeminiChatModel  string        `yaml:"gemini_chat_model"`  // Gemini's model in multi mode
	GeminiEmbedModel string        `yaml:"gemini_embed_model"` // Gemini's embedder in multi mode
	ConcurrentLimit  int           `yaml:"concurrent_limit"`   // max concurrent AI calls
	RatePerSecond    float64       `yaml:"rate_per_second"`
	Timeout          time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Backend string `yaml:"backend"` // memory | redis
	SeedDir string `yaml:"seed_dir"`
	TopK    int    `yaml:"top_k"`
	Prefix  string `yaml:"prefix"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PipelineConfig struct {
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	ScratchDir        string        `yaml:"scratch_dir"`
	MaxLinesPerFile   int           `yaml:"max_lines_per_file"`
	MaxTopLines       int           `yaml:"max_top_lines"`
	MaxQueryChars     int           `yaml:"max_query_chars"`
	MinReferenceScore float64       `yaml:"min_reference_score"`
	PromptTokenBudget int           `yaml:"prompt_token_budget"`
	AskPerMinute      int           `yaml:"ask_per_minute"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	AI       AIConfig       `yaml:"ai"`
	Index    IndexConfig    `yaml:"index"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A missing file is not an error:
// defaults plus environment overrides are enough to run locally.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envOr := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	envOr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	envOr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	envOr(&cfg.AI.ChatModel, "OPENAI_CHAT_MODEL")
	envOr(&cfg.AI.EmbedModel, "EMBED_MODEL")
	envOr(&cfg.Redis.URL, "REDIS_URL")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		cfg.HTTP.MaxUploadMB = 32
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 60 * time.Second
	}

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.OpenAIKey != "" && cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "multi"
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = "openai"
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "gemini"
		default:
			cfg.AI.Provider = "none"
		}
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.ChatModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.ChatModel = "gemini-2.0-flash"
		} else {
			cfg.AI.ChatModel = "gpt-4o-mini"
		}
	}
	if cfg.AI.EmbedModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.EmbedModel = "text-embedding-004"
		} else {
			cfg.AI.EmbedModel = "text-embedding-3-small"
		}
	}
	if cfg.AI.GeminiChatModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.GeminiChatModel = cfg.AI.ChatModel
		} else {
			cfg.AI.GeminiChatModel = "gemini-2.0-flash"
		}
	}
	if cfg.AI.GeminiEmbedModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.GeminiEmbedModel = cfg.AI.EmbedModel
		} else {
			cfg.AI.GeminiEmbedModel = "text-embedding-004"
		}
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	cfg.Index.Backend = strings.ToLower(cfg.Index.Backend)
	if cfg.Index.TopK <= 0 {
		cfg.Index.TopK = 3
	}
	if cfg.Index.Prefix == "" {
		cfg.Index.Prefix = "incidents"
	}

	p := &cfg.Pipeline
	if p.Workers <= 0 {
		p.Workers = 4
	}
	if p.QueueSize <= 0 {
		p.QueueSize = p.Workers * 4
	}
	if p.ScratchDir == "" {
		p.ScratchDir = "uploads"
	}
	if p.MaxLinesPerFile <= 0 {
		p.MaxLinesPerFile = 200
	}
	if p.MaxTopLines <= 0 {
		p.MaxTopLines = 50
	}
	if p.MaxQueryChars <= 0 {
		p.MaxQueryChars = 4000
	}
	if p.MinReferenceScore <= 0 {
		p.MinReferenceScore = 0.3
	}
	if p.PromptTokenBudget <= 0 {
		p.PromptTokenBudget = 3000
	}
	if p.JobTimeout <= 0 {
		p.JobTimeout = 5 * time.Minute
	}
}

// Validate performs minimal validation after defaults are applied.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "multi", "none":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	switch c.Index.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for index.backend redis")
		}
	default:
		return fmt.Errorf("index.backend %q is not supported", c.Index.Backend)
	}
	if c.Pipeline.MinReferenceScore > 1 {
		return errors.New("pipeline.min_reference_score must be within [0,1]")
	}
	return nil
}
