package model

const (
	ProvenanceLLM      = "llm"
	ProvenanceFallback = "fallback"
)

// RelatedCase is one similarity-index hit.
type RelatedCase struct {
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
	SourceID string  `json:"source_id"`
}

// RetrievalResult is ordered by Score, highest first.
type RetrievalResult []RelatedCase

type TimelineEvent struct {
	Timestamp   *string `json:"timestamp"`
	Description string  `json:"description"`
}

type RootCause struct {
	Hypothesis string  `json:"hypothesis"`
	Confidence float64 `json:"confidence"`
}

type Reference struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// IncidentSummary is the final report of a job.
type IncidentSummary struct {
	Summary           string          `json:"summary"`
	Confidence        float64         `json:"confidence"`
	Timeline          []TimelineEvent `json:"timeline"`
	ImmediateEvidence []string        `json:"immediate_evidence"`
	RootCauses        []RootCause     `json:"root_causes"`
	NextSteps         []string        `json:"next_steps"`
	RelatedCases      RetrievalResult `json:"related_cases"`
	References        []Reference     `json:"references"`

	Provenance     string `json:"provenance"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// EmptySummary is the report for a job that produced no evidence.
func EmptySummary(related RetrievalResult) IncidentSummary {
	if related == nil {
		related = RetrievalResult{}
	}
	return IncidentSummary{
		Summary:           "No log evidence was available for analysis.",
		Timeline:          []TimelineEvent{},
		ImmediateEvidence: []string{},
		RootCauses:        []RootCause{},
		NextSteps:         []string{},
		RelatedCases:      related,
		References:        []Reference{},
		Provenance:        ProvenanceFallback,
		FallbackReason:    "no evidence",
	}
}

func Clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
