//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"incident-analyzer/internal/config"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithJobID(WithTraceID(context.Background(), "t-1"), "job-9")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a json log line, got %q: %v", buf.String(), err)
	}
	if line["trace_id"] != "t-1" || line["job_id"] != "job-9" {
		t.Errorf("expected context fields, got %v", line)
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
	l.Warn().Msg("kept")
	if buf.Len() == 0 {
		t.Error("expected warn line to be written")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-1234567890", false); got != "sk-1...90" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("sk-1234567890", true); got != "sk-1234567890" {
		t.Errorf("dev mode should not redact, got %q", got)
	}
}
