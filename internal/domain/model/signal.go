package model

// SourceFile is one uploaded file handed to triage.
type SourceFile struct {
	Name    string
	Content []byte
}

// SignalLine is a log line judged likely to carry diagnostic value.
type SignalLine struct {
	Source    string   `json:"source"`
	LineNo    int      `json:"line_no"`
	Text      string   `json:"text"`
	Score     int      `json:"score"`
	Markers   []string `json:"markers,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Level     string   `json:"level,omitempty"`
	// Message is set for structured lines whose payload sits under a message key.
	Message string `json:"message,omitempty"`
}

// Display is the human-facing text of the line.
func (l SignalLine) Display() string {
	if l.Message != "" {
		return l.Message
	}
	return l.Text
}

// SignalCache is the triage artifact for one job. It is written once and
// replaced wholesale, never edited.
type SignalCache struct {
	QueryText string       `json:"query_text"`
	TopLines  []SignalLine `json:"top_lines"`
}

func (c *SignalCache) Empty() bool { return c == nil || len(c.TopLines) == 0 }
