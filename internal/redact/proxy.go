package redact

import (
	"strings"

	"github.com/sgx-labs/tripartite/internal/types"
	"github.com/sgx-labs/tripartite/internal/vault"
)

// Proxy is the Privacy Proxy binding a Pattern Set to a Vault for a given
// caller. It is cheap to construct and holds no per-call state of its own;
// all session state lives in the Vault.
type Proxy struct {
	patterns *PatternSet
	v        vault.Vault
}

// New builds a Proxy over v using the default built-in Pattern Set.
func New(v vault.Vault) *Proxy {
	return &Proxy{patterns: Default(), v: v}
}

// NewWithPatternSet builds a Proxy over v using a caller-supplied Pattern
// Set, e.g. for tests that need a reduced detector list.
func NewWithPatternSet(v vault.Vault, p *PatternSet) *Proxy {
	return &Proxy{patterns: p, v: v}
}

// Redact scans text for sensitive spans, mints a vault token per span, and
// returns the substituted text. Overlapping spans are already resolved by
// the Pattern Set; each surviving span gets its own token even if two
// spans share identical text, since each occurrence is a distinct original
// that must reinflate independently.
func (p *Proxy) Redact(text, sessionID string) (string, error) {
	spans := p.patterns.FindAll(text)
	if len(spans) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, s := range spans {
		b.WriteString(text[cursor:s.Start])
		token, err := p.v.Store(s.Text, s.Category, sessionID)
		if err != nil {
			return "", err
		}
		b.WriteString(token)
		cursor = s.End
	}
	b.WriteString(text[cursor:])
	return b.String(), nil
}

// Reinflate substitutes every vault token found in text with its original
// value. It is timing-neutral with respect to which tokens are hits versus
// misses: every candidate token found by TokenPattern is looked up exactly
// once via a single Vault.Retrieve call, in a single left-to-right pass,
// before any substitution decision is branched on. A miss is left in place
// verbatim rather than erroring, since an unredacted model response may
// legitimately echo bracketed text that merely resembles a token.
func (p *Proxy) Reinflate(text string) (string, error) {
	locs := types.TokenPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	originals := make([]string, len(locs))
	hits := make([]bool, len(locs))
	for i, loc := range locs {
		token := text[loc[0]:loc[1]]
		original, ok, err := p.v.Retrieve(token)
		if err != nil {
			return "", err
		}
		originals[i] = original
		hits[i] = ok
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for i, loc := range locs {
		b.WriteString(text[cursor:loc[0]])
		if hits[i] {
			b.WriteString(originals[i])
		} else {
			b.WriteString(text[loc[0]:loc[1]])
		}
		cursor = loc[1]
	}
	b.WriteString(text[cursor:])
	return b.String(), nil
}

// Stats reports the caller's current token usage for sessionID.
func (p *Proxy) Stats(sessionID string) (vault.SessionStats, error) {
	return p.v.SessionStats(sessionID)
}
