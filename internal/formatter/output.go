package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"incident-analyzer/internal/domain/model"
)

// DisplaySummary writes an incident report as human text, json or yaml.
func DisplaySummary(w io.Writer, s model.IncidentSummary, format string) error {
	switch format {
	case "json":
		return writeJSON(w, s)
	case "yaml":
		return writeYAML(w, s)
	case "human", "":
		displaySummaryHuman(w, s)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (human, json, yaml)", format)
	}
}

// DisplayAnswer writes a follow-up answer in the requested format.
func DisplayAnswer(w io.Writer, q string, a model.QnAResponse, format string) error {
	switch format {
	case "json":
		return writeJSON(w, a)
	case "yaml":
		return writeYAML(w, a)
	case "human", "":
		displayAnswerHuman(w, q, a)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (human, json, yaml)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func writeYAML(w io.Writer, v any) error {
	// round-trip through json so yaml keys follow the json tags
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func displaySummaryHuman(w io.Writer, s model.IncidentSummary) {
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "SUMMARY:")
	fmt.Fprintf(w, "   %s\n", s.Summary)
	fmt.Fprintf(w, "   confidence %s  provenance %s\n", confidenceColor(s.Confidence).Sprintf("%.2f", s.Confidence), s.Provenance)
	if s.FallbackReason != "" {
		fmt.Fprintf(w, "   %s\n", color.HiBlackString("fallback: "+s.FallbackReason))
	}
	fmt.Fprintln(w)

	if len(s.RootCauses) > 0 {
		red.Fprintln(w, "LIKELY ROOT CAUSES:")
		for i, rc := range s.RootCauses {
			fmt.Fprintf(w, "   %d. %s (%s)\n", i+1, rc.Hypothesis, confidenceColor(rc.Confidence).Sprintf("%.2f", rc.Confidence))
		}
		fmt.Fprintln(w)
	}

	if len(s.Timeline) > 0 {
		yellow.Fprintln(w, "TIMELINE:")
		for _, ev := range s.Timeline {
			ts := "--"
			if ev.Timestamp != nil {
				ts = *ev.Timestamp
			}
			fmt.Fprintf(w, "   %-26s %s\n", ts, ev.Description)
		}
		fmt.Fprintln(w)
	}

	if len(s.ImmediateEvidence) > 0 {
		yellow.Fprintln(w, "EVIDENCE:")
		for _, e := range s.ImmediateEvidence {
			fmt.Fprintf(w, "   - %s\n", color.YellowString(e))
		}
		fmt.Fprintln(w)
	}

	if len(s.NextSteps) > 0 {
		green.Fprintln(w, "NEXT STEPS:")
		for i, st := range s.NextSteps {
			fmt.Fprintf(w, "   %d. %s\n", i+1, st)
		}
		fmt.Fprintln(w)
	}

	if len(s.RelatedCases) > 0 {
		cyan.Fprintln(w, "RELATED INCIDENTS:")
		for _, rc := range s.RelatedCases {
			fmt.Fprintf(w, "   %.2f  %s\n", rc.Score, rc.Title)
			if rc.Snippet != "" {
				fmt.Fprintf(w, "         %s\n", color.HiBlackString(rc.Snippet))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("─", 80))
	fmt.Fprintf(w, "%s\n", color.HiBlackString("Run with -o json or -o yaml for machine-readable output"))
}

func displayAnswerHuman(w io.Writer, q string, a model.QnAResponse) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(w, "Q: %s\n", q)
	fmt.Fprintf(w, "A: %s\n", a.Answer)
	fmt.Fprintf(w, "   confidence %s  provenance %s\n", confidenceColor(a.Confidence).Sprintf("%.2f", a.Confidence), a.Provenance)
	for _, c := range a.Citations {
		fmt.Fprintf(w, "   [%s] %s\n", c.Source, color.YellowString(c.Snippet))
	}
	fmt.Fprintln(w)
}

func confidenceColor(c float64) *color.Color {
	switch {
	case c >= 0.7:
		return color.New(color.FgGreen)
	case c >= 0.4:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
