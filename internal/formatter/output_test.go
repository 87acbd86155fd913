//go:build !integration

package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"incident-analyzer/internal/domain/model"
)

func sample() model.IncidentSummary {
	ts := "2025-01-05 14:30:15"
	return model.IncidentSummary{
		Summary:           "Disk filled up on node-3.",
		Confidence:        0.3,
		Timeline:          []model.TimelineEvent{{Timestamp: &ts, Description: "write failed"}},
		ImmediateEvidence: []string{"node.log:21: No space left on device"},
		RootCauses:        []model.RootCause{{Hypothesis: "disk/space exhaustion on a volume", Confidence: 0.3}},
		NextSteps:         []string{"Free the volume"},
		RelatedCases:      model.RetrievalResult{{Title: "Disk full", Score: 0.8, Snippet: "rotate logs"}},
		References:        []model.Reference{},
		Provenance:        model.ProvenanceFallback,
		FallbackReason:    "provider unavailable",
	}
}

func TestDisplaySummary(t *testing.T) {
	color.NoColor = true

	t.Run("human output has every section", func(t *testing.T) {
		var buf bytes.Buffer
		if err := DisplaySummary(&buf, sample(), "human"); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"SUMMARY:", "LIKELY ROOT CAUSES:", "TIMELINE:", "EVIDENCE:", "NEXT STEPS:", "RELATED INCIDENTS:", "fallback: provider unavailable"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("json output decodes back", func(t *testing.T) {
		var buf bytes.Buffer
		if err := DisplaySummary(&buf, sample(), "json"); err != nil {
			t.Fatal(err)
		}
		var got model.IncidentSummary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Summary != sample().Summary {
			t.Fatalf("summary = %q", got.Summary)
		}
	})

	t.Run("yaml output uses json field names", func(t *testing.T) {
		var buf bytes.Buffer
		if err := DisplaySummary(&buf, sample(), "yaml"); err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if _, ok := got["root_causes"]; !ok {
			t.Fatalf("expected root_causes key, got %v", got)
		}
	})

	t.Run("unknown format is an error", func(t *testing.T) {
		if err := DisplaySummary(&bytes.Buffer{}, sample(), "xml"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDisplayAnswer(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	err := DisplayAnswer(&buf, "what broke?", model.QnAResponse{
		Answer:     "The disk.",
		Confidence: 0.4,
		Citations:  []model.Citation{{Source: "node.log", Snippet: "No space left on device"}},
		Provenance: model.ProvenanceFallback,
	}, "human")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[node.log] No space left on device") {
		t.Fatalf("citation missing:\n%s", buf.String())
	}
}
