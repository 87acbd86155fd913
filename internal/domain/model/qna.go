package model

type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// QnAResponse is returned by follow-up questions and never persisted.
type QnAResponse struct {
	Answer     string     `json:"answer"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Provenance string     `json:"provenance"`
}
