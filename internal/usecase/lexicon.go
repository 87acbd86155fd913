package usecase

import (
	"regexp"
	"strings"
)

// signalRule groups markers that point at one failure mode. Rules with a
// Hypothesis double as root-cause rules for the fallback report.
type signalRule struct {
	Name       string
	Weight     int
	Markers    []string // lowercase substrings
	Patterns   []labeledPattern
	Hypothesis string
	NextStep   string
}

type labeledPattern struct {
	Label string
	Re    *regexp.Regexp
}

func pat(label, expr string) labeledPattern {
	return labeledPattern{Label: label, Re: regexp.MustCompile(expr)}
}

var lexicon = []signalRule{
	{
		Name:       "disk_full",
		Weight:     3,
		Markers:    []string{"no space left on device", "enospc", "disk full", "disk quota exceeded", "filesystem full"},
		Hypothesis: "disk/space exhaustion on a volume",
		NextStep:   "Free or expand the affected volume and check log rotation and retention settings.",
	},
	{
		Name:       "oom",
		Weight:     3,
		Markers:    []string{"out of memory", "oomkilled", "memory limit exceeded", "cannot allocate memory"},
		Patterns:   []labeledPattern{pat("oom", `(?i)\boom\b`)},
		Hypothesis: "memory pressure / leak",
		NextStep:   "Inspect memory usage against limits and look for leaks before raising the limit.",
	},
	{
		Name:       "db_pool",
		Weight:     3,
		Markers:    []string{"pool exhausted", "connection pool", "too many connections", "pool timeout"},
		Hypothesis: "database connection pool exhaustion",
		NextStep:   "Check pool sizing, slow queries and connections that are never returned.",
	},
	{
		Name:       "circuit_breaker",
		Weight:     3,
		Markers:    []string{"circuitbreaker", "circuit breaker", "circuit open", "breaker open"},
		Hypothesis: "circuit breaker tripped by a failing downstream dependency",
		NextStep:   "Identify the downstream the breaker protects and check its health.",
	},
	{
		Name:       "timeout",
		Weight:     3,
		Markers:    []string{"timeout", "timed out", "deadline exceeded"},
		Hypothesis: "upstream latency or timeouts",
		NextStep:   "Trace the slow dependency and review timeout budgets along the call path.",
	},
	{
		Name:       "connection",
		Weight:     3,
		Markers:    []string{"connection refused", "connection reset", "broken pipe", "econnrefused", "unreachable"},
		Hypothesis: "dependency unreachable (connection refused or reset)",
		NextStep:   "Verify the dependency is running and reachable from the caller's network.",
	},
	{
		Name:       "crashloop",
		Weight:     3,
		Markers:    []string{"crashloopbackoff", "back-off restarting", "backoff", "restarting"},
		Hypothesis: "service crash loop / repeated restarts",
		NextStep:   "Check container exit codes and the first lines of startup logs.",
	},
	{
		Name:       "rate_limit",
		Weight:     3,
		Markers:    []string{"rate limit", "too many requests", "throttl"},
		Patterns:   []labeledPattern{pat("429", `\b429\b`)},
		Hypothesis: "request throttling / rate limiting",
		NextStep:   "Review client retry behavior and the quota of the throttling service.",
	},
	{
		Name:       "tls",
		Weight:     3,
		Markers:    []string{"x509", "certificate", "tls handshake", "ssl"},
		Hypothesis: "TLS or certificate problem (expiry or trust chain)",
		NextStep:   "Check certificate expiry and trust chain on both ends of the connection.",
	},
	{
		Name:       "dns",
		Weight:     3,
		Markers:    []string{"no such host", "nxdomain", "name resolution", "dns"},
		Hypothesis: "DNS resolution failure",
		NextStep:   "Verify the hostname resolves from the failing host and check resolver health.",
	},
	{
		Name:       "auth",
		Weight:     2,
		Markers:    []string{"permission denied", "unauthorized", "forbidden", "access denied"},
		Hypothesis: "authentication / authorization failure",
		NextStep:   "Check credentials, token expiry and recent permission changes.",
	},
	{
		Name:   "http_5xx",
		Weight: 2,
		Patterns: []labeledPattern{
			pat("5xx", `(?i)(?:\bstatus\b|\bcode\b|\bhttp\b|HTTP/[\d.]+"?)[^0-9\n]{0,12}5\d{2}\b`),
			pat("5xx", `(?i)\b5\d{2}\s+(?:internal server error|bad gateway|service unavailable|gateway timeout)`),
		},
		Hypothesis: "server-side errors returned by a service",
		NextStep:   "Find the first service returning 5xx responses and inspect its errors.",
	},
	{
		Name:    "generic",
		Weight:  1,
		Markers: []string{"error", "exception", "fail", "fatal", "panic", "refused", "critical", "traceback"},
	},
}

var (
	reTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})?|\b\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?\b`)
	reDuration  = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:ms|us|µs|ns|s|sec|secs|seconds|m|min|mins|minutes|h)\b`)
	reStatus    = regexp.MustCompile(`\b[1-5]\d{2}\b`)
)

// ruleMatch is one rule's hit on a line.
type ruleMatch struct {
	Rule    *signalRule
	Markers []string
}

// matchRules returns every rule hit on text, in lexicon order. Each marker is
// reported once.
func matchRules(text string) []ruleMatch {
	lower := strings.ToLower(text)
	var out []ruleMatch
	for i := range lexicon {
		r := &lexicon[i]
		var found []string
		for _, m := range r.Markers {
			if strings.Contains(lower, m) {
				found = appendUnique(found, m)
			}
		}
		for _, p := range r.Patterns {
			if p.Re.MatchString(text) {
				found = appendUnique(found, p.Label)
			}
		}
		if len(found) > 0 {
			out = append(out, ruleMatch{Rule: r, Markers: found})
		}
	}
	return out
}

// scoreLine is the sum of matched marker weights plus one for a numeric
// pattern (timestamp, duration or status code).
func scoreLine(text string) (int, []string) {
	score := 0
	var markers []string
	for _, m := range matchRules(text) {
		score += m.Rule.Weight * len(m.Markers)
		markers = append(markers, m.Markers...)
	}
	if reTimestamp.MatchString(text) || reDuration.MatchString(text) || reStatus.MatchString(text) {
		score++
	}
	return score, markers
}

func appendUnique(xs []string, s string) []string {
	for _, x := range xs {
		if x == s {
			return xs
		}
	}
	return append(xs, s)
}
