package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"incident-analyzer/internal/domain/model"
)

// TriageLimits bound the work and output of the signal extractor.
type TriageLimits struct {
	MaxLinesPerFile int
	MaxTopLines     int
	MaxQueryChars   int
}

func DefaultTriageLimits() TriageLimits {
	return TriageLimits{MaxLinesPerFile: 200, MaxTopLines: 50, MaxQueryChars: 4000}
}

// SignalExtractor reduces raw log files to ranked signal lines. It is pure
// local computation and safe for concurrent use.
type SignalExtractor struct {
	limits TriageLimits
}

func NewSignalExtractor(l TriageLimits) *SignalExtractor {
	d := DefaultTriageLimits()
	if l.MaxLinesPerFile <= 0 {
		l.MaxLinesPerFile = d.MaxLinesPerFile
	}
	if l.MaxTopLines <= 0 {
		l.MaxTopLines = d.MaxTopLines
	}
	if l.MaxQueryChars <= 0 {
		l.MaxQueryChars = d.MaxQueryChars
	}
	return &SignalExtractor{limits: l}
}

var triageExts = map[string]bool{".log": true, ".txt": true, ".json": true, "": true}

// Triageable reports whether a file name carries a log-like extension.
func Triageable(name string) bool {
	return triageExts[strings.ToLower(filepath.Ext(name))]
}

// Extract scores the first MaxLinesPerFile non-empty lines of every file and
// keeps the best MaxTopLines. Files that are binary or not log-like are
// returned in skipped and cost nothing from the line budget.
func (e *SignalExtractor) Extract(files []model.SourceFile) (model.SignalCache, []string) {
	var (
		candidates []model.SignalLine
		skipped    []string
	)
	for _, f := range files {
		if !Triageable(f.Name) || isBinary(f.Content) {
			skipped = append(skipped, f.Name)
			continue
		}
		candidates = append(candidates, e.scanFile(f)...)
	}

	// candidates are in file order, so a stable sort keeps ties in that order
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > e.limits.MaxTopLines {
		candidates = candidates[:e.limits.MaxTopLines]
	}
	if candidates == nil {
		candidates = []model.SignalLine{}
	}
	return model.SignalCache{
		QueryText: buildQuery(candidates, e.limits.MaxQueryChars),
		TopLines:  candidates,
	}, skipped
}

func (e *SignalExtractor) scanFile(f model.SourceFile) []model.SignalLine {
	text := string(f.Content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	out := make([]model.SignalLine, 0, e.limits.MaxLinesPerFile)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		ts, level, msg := parseLineMeta(line)
		score, markers := scoreLine(line)
		out = append(out, model.SignalLine{
			Source:    f.Name,
			LineNo:    i + 1,
			Text:      line,
			Score:     score,
			Markers:   markers,
			Timestamp: ts,
			Level:     level,
			Message:   msg,
		})
		if len(out) == e.limits.MaxLinesPerFile {
			break
		}
	}
	return out
}

// buildQuery joins lines in rank order, keeping whole lines only. A line that
// would overflow the budget is skipped so shorter lines after it still fit.
func buildQuery(lines []model.SignalLine, maxChars int) string {
	var b strings.Builder
	used := 0
	for _, l := range lines {
		n := utf8.RuneCountInString(l.Text)
		sep := 0
		if used > 0 {
			sep = 1
		}
		if used+sep+n > maxChars {
			continue
		}
		if sep == 1 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
		used += sep + n
	}
	return b.String()
}

func isBinary(b []byte) bool {
	head := b
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}

var (
	reLevel  = regexp.MustCompile(`\b(FATAL|CRITICAL|ERROR|WARNING|WARN|INFO|DEBUG|TRACE)\b`)
	tsKeys   = []string{"ts", "time", "@timestamp", "timestamp"}
	lvlKeys  = []string{"level", "severity", "lvl"}
	msgKeys  = []string{"message", "msg", "log"}
	levelMap = map[string]string{"WARNING": "WARN", "CRITICAL": "FATAL", "ERR": "ERROR"}
)

// parseLineMeta pulls timestamp and level out of a JSON log line or a
// plain-text line. msg is only set for JSON lines.
func parseLineMeta(line string) (ts, level, msg string) {
	if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			ts = firstString(obj, tsKeys)
			level = normalizeLevel(firstString(obj, lvlKeys))
			msg = strings.TrimSpace(firstString(obj, msgKeys))
			return ts, level, msg
		}
	}
	ts = reTimestamp.FindString(line)
	if m := reLevel.FindStringSubmatch(line); m != nil {
		level = normalizeLevel(m[1])
	}
	return ts, level, ""
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func normalizeLevel(l string) string {
	l = strings.ToUpper(strings.TrimSpace(l))
	if m, ok := levelMap[l]; ok {
		return m
	}
	return l
}
