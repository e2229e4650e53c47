// Package redact implements the Pattern Set and Privacy Proxy: detection of
// sensitive spans in a raw prompt, their replacement with opaque vault
// tokens, and lossless reinflation of a model's response.
package redact

import (
	"regexp"
	"sort"
	"sync"

	"github.com/sgx-labs/tripartite/internal/types"
)

// detector is one compiled rule in the Pattern Set. Higher Priority wins
// when two detectors' matches overlap.
type detector struct {
	Category string
	Regex    *regexp.Regexp
	Priority int
	Enabled  bool
}

// PatternSet is the compiled, ordered collection of detectors. It is
// immutable after construction and safe for concurrent use.
type PatternSet struct {
	detectors []detector
}

var (
	defaultSet     *PatternSet
	defaultSetOnce sync.Once
)

// Default returns the package-level singleton Pattern Set, compiled once.
func Default() *PatternSet {
	defaultSetOnce.Do(func() {
		defaultSet = newBuiltinSet()
	})
	return defaultSet
}

// newBuiltinSet compiles the spec's 18 built-in detectors plus two
// supplemental ones (Slack legacy tokens, JWT-looking blobs) surfaced by
// the retrieval-augmented scan in the Truth agent's credential check.
// Detectors are sorted by descending priority so FindAll's overlap
// resolution always prefers the more specific match.
func newBuiltinSet() *PatternSet {
	raw := []detector{
		{Category: "EMAIL", Priority: 50, Regex: regexp.MustCompile(
			`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
		{Category: "PHONE", Priority: 40, Regex: regexp.MustCompile(
			`\+?[0-9]{1,3}[-. ]?\(?[0-9]{3}\)?[-. ]?[0-9]{3}[-. ]?[0-9]{4}`)},
		{Category: "SSN", Priority: 60, Regex: regexp.MustCompile(
			`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
		{Category: "CREDIT_CARD_VISA", Priority: 60, Regex: regexp.MustCompile(
			`\b4[0-9]{3}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{1,4}\b`)},
		{Category: "CREDIT_CARD_MASTERCARD", Priority: 60, Regex: regexp.MustCompile(
			`\b5[1-5][0-9]{2}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{1,4}\b`)},
		{Category: "CREDIT_CARD_AMEX", Priority: 60, Regex: regexp.MustCompile(
			`\b3[47][0-9]{2}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{1,4}\b`)},
		{Category: "CREDIT_CARD_DISCOVER", Priority: 60, Regex: regexp.MustCompile(
			`\b6(?:011|5[0-9]{2})[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{1,4}\b`)},
		{Category: "AWS_KEY", Priority: 70, Regex: regexp.MustCompile(
			`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
		{Category: "API_KEY_GENERIC", Priority: 55, Regex: regexp.MustCompile(
			`\bsk-[a-zA-Z0-9]{20,}\b`)},
		{Category: "API_KEY_GITHUB", Priority: 65, Regex: regexp.MustCompile(
			`\bgh[pousr]_[A-Za-z0-9]{36}\b`)},
		{Category: "API_KEY_SLACK", Priority: 65, Regex: regexp.MustCompile(
			`\bxox[baprs]-[0-9A-Za-z-]{10,}\b`)},
		{Category: "API_KEY_STRIPE", Priority: 65, Regex: regexp.MustCompile(
			`\b(?:sk|pk)_(?:test|live)_[0-9A-Za-z]{16,}\b`)},
		{Category: "IPV4", Priority: 30, Regex: regexp.MustCompile(
			`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)},
		{Category: "IPV6", Priority: 30, Regex: regexp.MustCompile(
			`\b(?:[0-9A-Fa-f]{1,4}:){2,7}(?::[0-9A-Fa-f]{1,4}){1,7}|\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b`)},
		{Category: "ABS_PATH", Priority: 20, Regex: regexp.MustCompile(
			`(?:/[A-Za-z0-9_.\-]+){2,}`)},
		{Category: "URL_TOKEN", Priority: 45, Regex: regexp.MustCompile(
			`https?://[^\s]+[?&](?:token|key|api_key|access_token)=[^\s&]+`)},
		{Category: "PASSWORD_ASSIGN", Priority: 55, Regex: regexp.MustCompile(
			`(?i)\bpassword\s*[:=]\s*\S+`)},
		{Category: "PEM_KEY", Priority: 80, Regex: regexp.MustCompile(
			`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)},
		// Supplemental, beyond the spec's 18: JWT-looking blobs and the
		// older Slack legacy token format, both surfaced repeatedly by
		// the credential-exposure scan that reuses this Pattern Set.
		{Category: "JWT", Priority: 60, Regex: regexp.MustCompile(
			`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)},
		{Category: "API_KEY_SLACK_LEGACY", Priority: 65, Regex: regexp.MustCompile(
			`\bxox[a-z]-[0-9]{10,}-[0-9]{10,}-[0-9A-Za-z]{24,}\b`)},
	}
	for i := range raw {
		raw[i].Enabled = true
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Priority > raw[j].Priority })
	return &PatternSet{detectors: raw}
}

// FindAll scans text with every enabled detector and returns the
// non-overlapping set of spans, higher priority winning any overlap. The
// returned spans are ordered by Start.
func (p *PatternSet) FindAll(text string) []types.Span {
	var candidates []types.Span
	for _, d := range p.detectors {
		if !d.Enabled {
			continue
		}
		for _, loc := range d.Regex.FindAllStringIndex(text, -1) {
			candidates = append(candidates, types.Span{
				Start:    loc[0],
				End:      loc[1],
				Category: d.Category,
				Priority: d.Priority,
				Text:     text[loc[0]:loc[1]],
			})
		}
	}

	// Higher priority first; for equal priority, longer match first, then
	// earlier start — gives a deterministic winner among overlapping hits.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		li, lj := candidates[i].End-candidates[i].Start, candidates[j].End-candidates[j].Start
		if li != lj {
			return li > lj
		}
		return candidates[i].Start < candidates[j].Start
	})

	var kept []types.Span
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
