package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/metrics"
)

// Output caps applied to every report, whichever path produced it.
const (
	maxTimeline   = 12
	maxEvidence   = 12
	maxRootCauses = 6
	maxNextSteps  = 10
	maxReferences = 10
)

// GenerationOptions tune calls to the generation provider.
type GenerationOptions struct {
	Model             string
	Temperature       float64
	MaxOutputTokens   int
	PromptTokenBudget int
	MinReferenceScore float64
}

func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{Temperature: 0.2, MaxOutputTokens: 1200, PromptTokenBudget: 3000, MinReferenceScore: 0.3}
}

// ReportSynthesizer turns signal lines and related incidents into an
// IncidentSummary. The model path is tried first; any failure of the call or
// of its output shape yields the rule-based report instead.
type ReportSynthesizer struct {
	provider adapter.GenerationProvider
	tokens   adapter.TokenCounter
	opts     GenerationOptions
	log      *zerolog.Logger
}

func NewReportSynthesizer(provider adapter.GenerationProvider, tokens adapter.TokenCounter, opts GenerationOptions, logger *zerolog.Logger) *ReportSynthesizer {
	return &ReportSynthesizer{provider: provider, tokens: tokens, opts: opts, log: logger}
}

func (s *ReportSynthesizer) Synthesize(ctx context.Context, lines []model.SignalLine, related model.RetrievalResult) model.IncidentSummary {
	if len(lines) == 0 {
		return model.EmptySummary(related)
	}
	if s.provider == nil {
		metrics.IncFallback("synthesizer")
		return FallbackSummary(lines, related, s.opts.MinReferenceScore, "generation provider not configured")
	}
	report, err := s.synthesizeLLM(ctx, lines, related)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", s.provider.Name()).Msg("model synthesis degraded to rule-based report")
		metrics.IncFallback("synthesizer")
		return FallbackSummary(lines, related, s.opts.MinReferenceScore, err.Error())
	}
	return report
}

const synthesisSystemPrompt = `You are a senior SRE writing an incident analysis.
Use ONLY the log signals and related past incidents you are given.
Confidence values are numbers between 0 and 1.
Timeline timestamps must be copied from the logs, or null when unknown.
Return a single JSON object matching the provided schema and nothing else.`

var reportSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"summary", "confidence", "timeline", "immediate_evidence", "root_causes", "next_steps", "references"},
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
		"timeline": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"timestamp", "description"},
				"properties": map[string]any{
					"timestamp":   map[string]any{"type": []string{"string", "null"}},
					"description": map[string]any{"type": "string"},
				},
			},
		},
		"immediate_evidence": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"root_causes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"hypothesis", "confidence"},
				"properties": map[string]any{
					"hypothesis": map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
		"next_steps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"references": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"source", "snippet"},
				"properties": map[string]any{
					"source":  map[string]any{"type": "string"},
					"snippet": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// llmReport mirrors reportSchema. Pointer fields tell a missing field apart
// from a zero value.
type llmReport struct {
	Summary           *string         `json:"summary"`
	Confidence        *float64        `json:"confidence"`
	Timeline          *[]llmTimeline  `json:"timeline"`
	ImmediateEvidence *[]string       `json:"immediate_evidence"`
	RootCauses        *[]llmRootCause `json:"root_causes"`
	NextSteps         *[]string       `json:"next_steps"`
	References        *[]llmReference `json:"references"`
}

type llmTimeline struct {
	Timestamp   *string `json:"timestamp"`
	Description *string `json:"description"`
}

type llmRootCause struct {
	Hypothesis *string  `json:"hypothesis"`
	Confidence *float64 `json:"confidence"`
}

type llmReference struct {
	Source  *string `json:"source"`
	Snippet *string `json:"snippet"`
}

func (s *ReportSynthesizer) synthesizeLLM(ctx context.Context, lines []model.SignalLine, related model.RetrievalResult) (model.IncidentSummary, error) {
	resp, err := s.provider.Complete(ctx, adapter.CompletionRequest{
		Model:       s.opts.Model,
		System:      synthesisSystemPrompt,
		Prompt:      s.buildPrompt(lines, related),
		SchemaName:  "incident_summary",
		Schema:      reportSchema,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxOutputTokens,
	})
	if err != nil {
		return model.IncidentSummary{}, err
	}
	var raw llmReport
	if err := decodeStrict(resp.Text, &raw); err != nil {
		return model.IncidentSummary{}, err
	}
	return validateReport(raw, related)
}

func (s *ReportSynthesizer) buildPrompt(lines []model.SignalLine, related model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("LOG SIGNALS (highest ranked first):\n")
	b.WriteString(clipToBudget(evidenceLines(lines), s.tokens, s.opts.PromptTokenBudget))
	b.WriteString("\n\nRELATED PAST INCIDENTS:\n")
	if len(related) == 0 {
		b.WriteString("(none)\n")
	}
	for _, rc := range related {
		fmt.Fprintf(&b, "- %s (similarity %.2f): %s\n", rc.Title, rc.Score, rc.Snippet)
	}
	return b.String()
}

// validateReport accepts the model output only when every required field is
// present and every confidence lies in [0,1].
func validateReport(raw llmReport, related model.RetrievalResult) (model.IncidentSummary, error) {
	switch {
	case raw.Summary == nil || strings.TrimSpace(*raw.Summary) == "":
		return model.IncidentSummary{}, invalid("summary missing")
	case raw.Confidence == nil:
		return model.IncidentSummary{}, invalid("confidence missing")
	case !in01(*raw.Confidence):
		return model.IncidentSummary{}, invalid("confidence %v out of range", *raw.Confidence)
	case raw.Timeline == nil, raw.ImmediateEvidence == nil, raw.RootCauses == nil, raw.NextSteps == nil, raw.References == nil:
		return model.IncidentSummary{}, invalid("list field missing")
	}

	out := model.IncidentSummary{
		Summary:           strings.TrimSpace(*raw.Summary),
		Confidence:        *raw.Confidence,
		Timeline:          make([]model.TimelineEvent, 0, len(*raw.Timeline)),
		ImmediateEvidence: capStrings(nonEmpty(*raw.ImmediateEvidence), maxEvidence),
		RootCauses:        make([]model.RootCause, 0, len(*raw.RootCauses)),
		NextSteps:         capStrings(nonEmpty(*raw.NextSteps), maxNextSteps),
		RelatedCases:      nonNilRelated(related),
		References:        make([]model.Reference, 0, len(*raw.References)),
		Provenance:        model.ProvenanceLLM,
	}
	for i, t := range *raw.Timeline {
		if t.Description == nil {
			return model.IncidentSummary{}, invalid("timeline[%d].description missing", i)
		}
		if len(out.Timeline) < maxTimeline && strings.TrimSpace(*t.Description) != "" {
			out.Timeline = append(out.Timeline, model.TimelineEvent{Timestamp: t.Timestamp, Description: *t.Description})
		}
	}
	for i, rc := range *raw.RootCauses {
		if rc.Hypothesis == nil || rc.Confidence == nil {
			return model.IncidentSummary{}, invalid("root_causes[%d] incomplete", i)
		}
		if !in01(*rc.Confidence) {
			return model.IncidentSummary{}, invalid("root_causes[%d].confidence %v out of range", i, *rc.Confidence)
		}
		if strings.TrimSpace(*rc.Hypothesis) != "" {
			out.RootCauses = append(out.RootCauses, model.RootCause{Hypothesis: *rc.Hypothesis, Confidence: *rc.Confidence})
		}
	}
	sortRootCauses(out.RootCauses)
	if len(out.RootCauses) > maxRootCauses {
		out.RootCauses = out.RootCauses[:maxRootCauses]
	}
	for i, r := range *raw.References {
		if r.Source == nil || r.Snippet == nil {
			return model.IncidentSummary{}, invalid("references[%d] incomplete", i)
		}
		if len(out.References) < maxReferences && strings.TrimSpace(*r.Snippet) != "" {
			out.References = append(out.References, model.Reference{Source: *r.Source, Snippet: *r.Snippet})
		}
	}
	return out, nil
}

// FallbackSummary builds the rule-based report from local inputs only.
func FallbackSummary(lines []model.SignalLine, related model.RetrievalResult, minRefScore float64, reason string) model.IncidentSummary {
	if len(lines) == 0 {
		return model.EmptySummary(related)
	}

	causes, steps, markers := diagnose(lines)
	out := model.IncidentSummary{
		Summary:           fallbackProse(lines, causes),
		Confidence:        minFloat(0.1*float64(markers), fallbackConfidenceCeiling),
		Timeline:          fallbackTimeline(lines),
		ImmediateEvidence: make([]string, 0, maxEvidence),
		RootCauses:        causes,
		NextSteps:         steps,
		RelatedCases:      nonNilRelated(related),
		References:        []model.Reference{},
		Provenance:        model.ProvenanceFallback,
		FallbackReason:    reason,
	}
	for _, l := range lines {
		if len(out.ImmediateEvidence) == maxEvidence {
			break
		}
		out.ImmediateEvidence = append(out.ImmediateEvidence, fmt.Sprintf("%s:%d: %s", l.Source, l.LineNo, l.Text))
	}
	for _, rc := range related {
		if len(out.References) == maxReferences {
			break
		}
		if rc.Score > minRefScore && rc.Snippet != "" {
			out.References = append(out.References, model.Reference{Source: rc.Title, Snippet: rc.Snippet})
		}
	}
	return out
}

// fallbackConfidenceCeiling caps every confidence the rule-based report emits.
const fallbackConfidenceCeiling = 0.6

// diagnose maps lexicon hits on the lines to root causes and next steps, and
// counts distinct markers seen.
func diagnose(lines []model.SignalLine) ([]model.RootCause, []string, int) {
	hits := map[*signalRule]int{}
	var order []*signalRule
	distinct := map[string]struct{}{}
	for _, l := range lines {
		for _, m := range matchRules(l.Text) {
			for _, mk := range m.Markers {
				distinct[mk] = struct{}{}
			}
			if m.Rule.Hypothesis == "" {
				continue
			}
			if _, seen := hits[m.Rule]; !seen {
				order = append(order, m.Rule)
			}
			hits[m.Rule]++
		}
	}

	causes := make([]model.RootCause, 0, len(order))
	for _, r := range order {
		causes = append(causes, model.RootCause{
			Hypothesis: r.Hypothesis,
			Confidence: minFloat(0.2+0.1*float64(hits[r]), fallbackConfidenceCeiling),
		})
	}
	sortRootCauses(causes)
	if len(causes) > maxRootCauses {
		causes = causes[:maxRootCauses]
	}

	steps := make([]string, 0, maxNextSteps)
	for _, c := range causes {
		for _, r := range order {
			if r.Hypothesis == c.Hypothesis && len(steps) < maxNextSteps-1 {
				steps = append(steps, r.NextStep)
			}
		}
	}
	steps = append(steps, "Review the cited log lines around the earliest error and correlate with recent deploys or config changes.")
	return causes, steps, len(distinct)
}

func fallbackProse(lines []model.SignalLine, causes []model.RootCause) string {
	sources := map[string]struct{}{}
	for _, l := range lines {
		sources[l.Source] = struct{}{}
	}
	top := make([]string, 0, 3)
	for _, l := range lines {
		if len(top) == 3 {
			break
		}
		top = append(top, fmt.Sprintf("%q", l.Display()))
	}
	s := fmt.Sprintf("Rule-based analysis of %d signal line(s) from %d file(s). Most significant: %s.",
		len(lines), len(sources), strings.Join(top, "; "))
	if len(causes) > 0 {
		s += " Most likely cause: " + causes[0].Hypothesis + "."
	}
	return s
}

// fallbackTimeline lists the highest-ranked lines chronologically. Lines
// without a parseable timestamp follow the timed ones; source position breaks
// ties.
func fallbackTimeline(lines []model.SignalLine) []model.TimelineEvent {
	picked := append([]model.SignalLine(nil), lines...)
	if len(picked) > maxTimeline {
		picked = picked[:maxTimeline]
	}
	at := make([]time.Time, len(picked))
	timed := make([]bool, len(picked))
	for i, l := range picked {
		at[i], timed[i] = parseEventTime(l.Timestamp)
	}
	idx := make([]int, len(picked))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if timed[i] != timed[j] {
			return timed[i]
		}
		if timed[i] && !at[i].Equal(at[j]) {
			return at[i].Before(at[j])
		}
		if picked[i].Source != picked[j].Source {
			return picked[i].Source < picked[j].Source
		}
		return picked[i].LineNo < picked[j].LineNo
	})
	ordered := make([]model.SignalLine, len(idx))
	for k, i := range idx {
		ordered[k] = picked[i]
	}
	picked = ordered
	out := make([]model.TimelineEvent, 0, len(picked))
	for _, l := range picked {
		ev := model.TimelineEvent{Description: l.Display()}
		if l.Timestamp != "" {
			ts := l.Timestamp
			ev.Timestamp = &ts
		}
		out = append(out, ev)
	}
	return out
}

var eventTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"15:04:05.999999999",
}

// parseEventTime reads the timestamp shapes triage extracts. Zone-less values
// are taken as UTC.
func parseEventTime(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	ts = strings.Replace(ts, ",", ".", 1)
	if len(ts) > 10 && ts[10] == 'T' {
		ts = ts[:10] + " " + ts[11:]
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clipToBudget keeps whole lines, in order, while the token count fits.
func clipToBudget(lines []string, tc adapter.TokenCounter, budget int) string {
	var b strings.Builder
	used := 0
	for _, l := range lines {
		n := len(l) / 4
		if tc != nil {
			n = tc.Count(l)
		}
		if budget > 0 && used+n > budget {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
		used += n
	}
	return b.String()
}

func evidenceLines(lines []model.SignalLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = fmt.Sprintf("[%s:%d] %s", l.Source, l.LineNo, l.Text)
	}
	return out
}

func sortRootCauses(rc []model.RootCause) {
	sort.SliceStable(rc, func(i, j int) bool { return rc[i].Confidence > rc[j].Confidence })
}

func nonNilRelated(r model.RetrievalResult) model.RetrievalResult {
	if r == nil {
		return model.RetrievalResult{}
	}
	return r
}

func nonEmpty(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if strings.TrimSpace(x) != "" {
			out = append(out, x)
		}
	}
	return out
}

func capStrings(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func in01(v float64) bool { return v >= 0 && v <= 1 }

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
