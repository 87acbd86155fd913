package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"incident-analyzer/internal/domain"
)

var (
	reOpenFence  = regexp.MustCompile("^```[a-zA-Z]*[ \t]*\r?\n?")
	reCloseFence = regexp.MustCompile("\r?\n?```$")
)

// stripFences removes one markdown code fence wrapping the whole response,
// such as ```json ... ```. Backticks inside the payload are left alone.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = reOpenFence.ReplaceAllString(text, "")
	text = reCloseFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// decodeStrict decodes a model response into v, rejecting unknown fields and
// trailing data.
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(stripFences(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode model output: %v: %w", err, domain.ErrInvalidResponse)
	}
	// More() misses a stray '}' or ']', so read one more token
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode model output: trailing data: %w", domain.ErrInvalidResponse)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrInvalidResponse)...)
}
