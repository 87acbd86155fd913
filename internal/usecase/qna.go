package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/metrics"
)

const (
	// qnaFallbackCeiling is below anything the model path normally reports.
	qnaFallbackCeiling = 0.4
	maxCitations       = 3
	noEvidenceAnswer   = "No log evidence is available for this job yet, so the question cannot be answered."
)

// QuestionAnswerer answers follow-up questions against a job's cached
// evidence. Every citation it returns is a verbatim substring of a cached line.
type QuestionAnswerer struct {
	provider adapter.GenerationProvider
	tokens   adapter.TokenCounter
	opts     GenerationOptions
	log      *zerolog.Logger
}

func NewQuestionAnswerer(provider adapter.GenerationProvider, tokens adapter.TokenCounter, opts GenerationOptions, logger *zerolog.Logger) *QuestionAnswerer {
	return &QuestionAnswerer{provider: provider, tokens: tokens, opts: opts, log: logger}
}

// Answer returns domain.ErrInvalidArgument for a blank question. No other
// condition is an error.
func (a *QuestionAnswerer) Answer(ctx context.Context, question string, lines []model.SignalLine, related model.RetrievalResult) (model.QnAResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.QnAResponse{}, fmt.Errorf("question is empty: %w", domain.ErrInvalidArgument)
	}
	if len(lines) == 0 {
		return model.QnAResponse{
			Answer:     noEvidenceAnswer,
			Confidence: 0,
			Citations:  []model.Citation{},
			Provenance: model.ProvenanceFallback,
		}, nil
	}
	if a.provider == nil {
		metrics.IncFallback("answerer")
		return FallbackAnswer(question, lines), nil
	}
	resp, err := a.answerLLM(ctx, question, lines, related)
	if err != nil {
		a.log.Warn().Err(err).Str("provider", a.provider.Name()).Msg("model answer degraded to lexical match")
		metrics.IncFallback("answerer")
		return FallbackAnswer(question, lines), nil
	}
	return resp, nil
}

const qnaSystemPrompt = `You answer questions about a production incident.
Use ONLY the numbered log lines and related incidents provided.
Every citation snippet must be copied exactly, character for character, from one log line.
If the evidence does not answer the question, say so and give a low confidence.
Return a single JSON object matching the provided schema and nothing else.`

var answerSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"answer", "confidence", "citations"},
	"properties": map[string]any{
		"answer":     map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
		"citations": map[string]any{
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

type llmAnswer struct {
	Answer     *string         `json:"answer"`
	Confidence *float64        `json:"confidence"`
	Citations  *[]llmReference `json:"citations"`
}

func (a *QuestionAnswerer) answerLLM(ctx context.Context, question string, lines []model.SignalLine, related model.RetrievalResult) (model.QnAResponse, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION: %s\n\nLOG LINES:\n", question)
	b.WriteString(clipToBudget(evidenceLines(lines), a.tokens, a.opts.PromptTokenBudget))
	if len(related) > 0 {
		b.WriteString("\nRELATED PAST INCIDENTS:\n")
		for _, rc := range related {
			fmt.Fprintf(&b, "- %s: %s\n", rc.Title, rc.Snippet)
		}
	}

	resp, err := a.provider.Complete(ctx, adapter.CompletionRequest{
		Model:       a.opts.Model,
		System:      qnaSystemPrompt,
		Prompt:      b.String(),
		SchemaName:  "grounded_answer",
		Schema:      answerSchema,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxOutputTokens,
	})
	if err != nil {
		return model.QnAResponse{}, err
	}
	var raw llmAnswer
	if err := decodeStrict(resp.Text, &raw); err != nil {
		return model.QnAResponse{}, err
	}
	switch {
	case raw.Answer == nil || strings.TrimSpace(*raw.Answer) == "":
		return model.QnAResponse{}, invalid("answer missing")
	case raw.Confidence == nil || !in01(*raw.Confidence):
		return model.QnAResponse{}, invalid("confidence missing or out of range")
	case raw.Citations == nil:
		return model.QnAResponse{}, invalid("citations missing")
	}

	cites, dropped := verifyCitations(*raw.Citations, lines)
	metrics.AddCitationsDropped(dropped)
	conf := *raw.Confidence
	if len(cites) == 0 && len(*raw.Citations) > 0 {
		// nothing the model cited could be traced to evidence
		conf = minFloat(conf, qnaFallbackCeiling)
	}
	return model.QnAResponse{
		Answer:     strings.TrimSpace(*raw.Answer),
		Confidence: conf,
		Citations:  cites,
		Provenance: model.ProvenanceLLM,
	}, nil
}

// verifyCitations keeps only snippets found verbatim in a cached line and
// attributes each to that line's source. Duplicates are dropped.
func verifyCitations(raw []llmReference, lines []model.SignalLine) ([]model.Citation, int) {
	out := make([]model.Citation, 0, len(raw))
	seen := map[string]struct{}{}
	dropped := 0
	for _, c := range raw {
		if c.Snippet == nil {
			dropped++
			continue
		}
		snip := strings.TrimSpace(*c.Snippet)
		src, ok := findVerbatim(snip, lines)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[snip]; dup {
			continue
		}
		seen[snip] = struct{}{}
		out = append(out, model.Citation{Source: src, Snippet: snip})
	}
	return out, dropped
}

func findVerbatim(snippet string, lines []model.SignalLine) (string, bool) {
	if snippet == "" {
		return "", false
	}
	for _, l := range lines {
		if strings.Contains(l.Text, snippet) {
			return l.Source, true
		}
	}
	return "", false
}

// FallbackAnswer ranks cached lines by shared significant tokens with the
// question and cites the best ones whole.
func FallbackAnswer(question string, lines []model.SignalLine) model.QnAResponse {
	q := significantTokens(question)
	type ranked struct {
		line    model.SignalLine
		overlap int
	}
	var hits []ranked
	if len(q) > 0 {
		for _, l := range lines {
			lt := significantTokens(l.Text)
			n := 0
			for t := range q {
				if _, ok := lt[t]; ok {
					n++
				}
			}
			if n > 0 {
				hits = append(hits, ranked{line: l, overlap: n})
			}
		}
	}
	if len(hits) == 0 {
		return model.QnAResponse{
			Answer:     "None of the cached log lines relate to this question.",
			Confidence: 0,
			Citations:  []model.Citation{},
			Provenance: model.ProvenanceFallback,
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].overlap > hits[j].overlap })
	best := hits[0]
	cites := make([]model.Citation, 0, maxCitations)
	for _, h := range hits {
		if len(cites) == maxCitations {
			break
		}
		cites = append(cites, model.Citation{Source: h.line.Source, Snippet: h.line.Text})
	}
	return model.QnAResponse{
		Answer: fmt.Sprintf("The most relevant evidence is in %s line %d: %q",
			best.line.Source, best.line.LineNo, best.line.Text),
		Confidence: qnaFallbackCeiling * float64(best.overlap) / float64(len(q)),
		Citations:  cites,
		Provenance: model.ProvenanceFallback,
	}
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and for are was were what why how did does this that
		with from there their which when where who whom any have has had not but can could should
		would into about than then them they you your our its it's also just been being all any
		some such only over under after before during while happen happened cause caused`) {
		stopwords[w] = struct{}{}
	}
}

func significantTokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(t)) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}
