package model

// IncidentDocument is a prior-incident write-up stored in the similarity index.
type IncidentDocument struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Takeaway string `json:"takeaway"`
	Path     string `json:"path"`
	Body     string `json:"body"`
}

// Snippet is the short excerpt shown with a retrieval hit.
func (d IncidentDocument) Snippet() string {
	if d.Takeaway != "" {
		return d.Takeaway
	}
	const max = 280
	if r := []rune(d.Body); len(r) > max {
		return string(r[:max])
	}
	return d.Body
}

// JobRecord is everything the orchestrator keeps for one job.
type JobRecord struct {
	Job       Job
	Signals   *SignalCache
	Related   RetrievalResult
	Summary   *IncidentSummary
	Cancelled bool
}
