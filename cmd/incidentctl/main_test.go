//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"incident-analyzer/internal/domain/model"
)

func writeFixture(t *testing.T) (cfgPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := "ai:\n  provider: none\npipeline:\n  workers: 1\n  scratch_dir: " + filepath.Join(dir, "scratch") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	logPath = filepath.Join(dir, "node.log")
	lines := "2025-01-05 14:30:10 INFO starting writer\n" +
		"2025-01-05 14:30:15 ERROR write failed: No space left on device\n" +
		"2025-01-05 14:30:16 WARN retrying in 5s\n"
	if err := os.WriteFile(logPath, []byte(lines), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, logPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts = globalOptions{}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "incidentctl dev") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestAnalyzeCmd(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	cfgPath, logPath := writeFixture(t)

	t.Run("should print a fallback report as json", func(t *testing.T) {
		out, err := run(t, "--config", cfgPath, "analyze", "-o", "json", logPath)
		if err != nil {
			t.Fatal(err)
		}
		var report model.IncidentSummary
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		if report.Provenance != model.ProvenanceFallback {
			t.Fatalf("provenance = %q", report.Provenance)
		}
		if len(report.ImmediateEvidence) == 0 || !strings.Contains(report.ImmediateEvidence[0], "No space left") {
			t.Fatalf("evidence = %v", report.ImmediateEvidence)
		}
	})

	t.Run("should reject a missing file", func(t *testing.T) {
		if _, err := run(t, "--config", cfgPath, "analyze", filepath.Join(t.TempDir(), "nope.log")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestAskCmd(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	cfgPath, logPath := writeFixture(t)

	t.Run("should require a question", func(t *testing.T) {
		if _, err := run(t, "--config", cfgPath, "ask", logPath); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("should cite log lines verbatim", func(t *testing.T) {
		out, err := run(t, "--config", cfgPath, "ask", "-o", "json", "-q", "why did the write fail with no space", logPath)
		if err != nil {
			t.Fatal(err)
		}
		var resp model.QnAResponse
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		if len(resp.Citations) == 0 {
			t.Fatalf("expected citations, got %+v", resp)
		}
		if !strings.Contains(resp.Citations[0].Snippet, "No space left on device") {
			t.Fatalf("citation = %+v", resp.Citations[0])
		}
	})
}
