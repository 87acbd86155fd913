//go:build !integration

package application

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/logging"
)

// fakeGemini answers generateContent and embedding calls and records paths.
type fakeGemini struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]}}]}`)
	case strings.Contains(r.URL.Path, "mbedContent"):
		_, _ = io.WriteString(w, `{"embeddings":[{"values":[0.1,0.2,0.3]}]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGemini) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "REDIS_URL", "OPENAI_CHAT_MODEL", "EMBED_MODEL"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadConfig(path, false)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestBuildProviders_MultiUsesGeminiModels(t *testing.T) {
	gem := &fakeGemini{}
	srv := httptest.NewServer(gem)
	defer srv.Close()

	cfg := loadConfig(t, "ai:\n  provider: multi\n  gemini_key: g-test\n  gemini_url: "+srv.URL+"\n")
	ctx := context.Background()
	gen, emb, err := buildProviders(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// the pipeline asks for the primary chat model; gemini must not receive it
	resp, err := gen.Complete(ctx, adapter.CompletionRequest{Model: cfg.AI.ChatModel, Prompt: "what failed?"})
	if err != nil {
		t.Fatalf("complete: %v (paths %v)", err, gem.seen())
	}
	if resp.Provider != "gemini" || resp.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected response origin %s/%s", resp.Provider, resp.Model)
	}
	_, _ = emb.Embed(ctx, []string{"No space left on device"})

	var generated, embedded bool
	for _, p := range gem.seen() {
		if strings.Contains(p, "gpt-") || strings.Contains(p, "text-embedding-3") {
			t.Errorf("openai model leaked to gemini: %s", p)
		}
		if strings.HasSuffix(p, "models/gemini-2.0-flash:generateContent") {
			generated = true
		}
		if strings.Contains(p, "models/text-embedding-004:") {
			embedded = true
		}
	}
	if !generated || !embedded {
		t.Fatalf("expected gemini model paths, got %v", gem.seen())
	}
}

func TestBuild_OfflineProvider(t *testing.T) {
	cfg := loadConfig(t, "pipeline:\n  scratch_dir: "+t.TempDir()+"\n")
	app, err := Build(context.Background(), cfg, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if app.Provider != "none" || app.Health.Index != "memory" {
		t.Fatalf("unexpected wiring %s/%s", app.Provider, app.Health.Index)
	}
}
