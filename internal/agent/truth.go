package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mdombrov-33/go-promptguard/detector"

	"github.com/sgx-labs/tripartite/internal/hardware"
	"github.com/sgx-labs/tripartite/internal/redact"
	"github.com/sgx-labs/tripartite/internal/types"
)

// promptGuard screens candidate answers for injected instructions that
// slipped through Logic — e.g. text lifted from a retrieved chunk that
// tries to redirect the agent. Pattern + statistical detectors only, no
// LLM judge, so the check stays cheap enough to run on every verify call.
var promptGuard = detector.New(
	detector.WithThreshold(0.6),
	detector.WithAllDetectors(),
	detector.WithMaxInputLength(8000),
)

type vetoPattern struct {
	name string
	re   *regexp.Regexp
}

var (
	vetoPatterns     []vetoPattern
	vetoPatternsOnce sync.Once
)

// compiledVetoPatterns returns the process-wide, lazily-initialized veto
// pattern set. Compilation failure is a programmer error and aborts
// startup with a clear diagnostic; it cannot occur from user input.
func compiledVetoPatterns() []vetoPattern {
	vetoPatternsOnce.Do(func() {
		vetoPatterns = []vetoPattern{
			{"recursive root deletion", regexp.MustCompile(`rm\s+-rf\s+/(?:\s|$)`)},
			{"home directory deletion", regexp.MustCompile(`rm\s+-rf\s+(~|\$HOME)`)},
			{"overly permissive chmod", regexp.MustCompile(`chmod\s+(-R\s+)?777`)},
			{"piping network fetch to shell", regexp.MustCompile(`curl[^|\n]*\|\s*(sudo\s+)?sh`)},
			{"eval of user input", regexp.MustCompile(`eval\([^)]*user_input[^)]*\)`)},
		}
	})
	return vetoPatterns
}

// PrefetchData is the snapshot Truth's prefetch phase gathers for the
// later verify call. Collecting it performs no model inference, so it can
// run concurrently with Logic.
type PrefetchData struct {
	Manifest       types.Manifest
	HardwareLimits hardware.Limits
	CurrentTempC   float64
}

// Truth verifies a Logic candidate against safety patterns, hardware
// limits, and factual hints, split into a model-free prefetch phase and a
// verify phase that runs after Logic completes.
type Truth struct {
	readyFlag
	oracle   hardware.Oracle
	patterns *redact.PatternSet
}

// NewTruth builds a Truth agent over a hardware oracle. patterns, when
// nil, defaults to the shared built-in Pattern Set.
func NewTruth(oracle hardware.Oracle, patterns *redact.PatternSet) *Truth {
	if patterns == nil {
		patterns = redact.Default()
	}
	t := &Truth{oracle: oracle, patterns: patterns}
	t.setReady(true)
	return t
}

func (t *Truth) Name() string { return "truth" }

// Prefetch gathers safety-pattern and hardware state ahead of Logic
// finishing. It performs no model inference.
func (t *Truth) Prefetch(ctx context.Context, manifest types.Manifest) (PrefetchData, error) {
	data := PrefetchData{Manifest: manifest}
	if t.oracle != nil {
		data.HardwareLimits = t.oracle.Limits()
		temp, err := t.oracle.CurrentTemperatureC()
		if err != nil {
			return PrefetchData{}, &Error{Kind: KindModelUnavailable, Agent: "truth", Msg: "read hardware temperature", Err: err}
		}
		data.CurrentTempC = temp
	}
	return data, nil
}

// Verify runs the five-step verification pass against a Logic candidate
// and produces a Verdict.
func (t *Truth) Verify(ctx context.Context, candidateAnswer string, prefetch PrefetchData) (types.Verdict, error) {
	var constraints []types.Constraint

	constraints = append(constraints, t.safetyScan(candidateAnswer)...)
	constraints = append(constraints, t.injectionScan(candidateAnswer)...)
	constraints = append(constraints, t.credentialScan(candidateAnswer)...)
	if prefetch.Manifest.VerificationScope.CheckHardware {
		constraints = append(constraints, t.hardwareCheck(candidateAnswer, prefetch)...)
	}
	if prefetch.Manifest.VerificationScope.CheckFacts {
		constraints = append(constraints, t.factCheck(prefetch.Manifest, candidateAnswer)...)
	}
	if prefetch.Manifest.QueryType == types.QueryGenerate {
		constraints = append(constraints, t.qualityCheck(candidateAnswer)...)
	}

	verdict := types.Verdict{Constraints: constraints}
	switch {
	case hasSeverity(constraints, types.SeverityCritical):
		verdict.Kind = types.VerdictVeto
	case hasSeverity(constraints, types.SeverityError):
		verdict.Kind = types.VerdictNeedsRevision
	default:
		verdict.Kind = types.VerdictApproved
	}
	verdict.Confidence = verdictConfidence(constraints)
	verdict.Feedback = formatFeedback(constraints)
	return verdict, nil
}

func (t *Truth) safetyScan(answer string) []types.Constraint {
	var out []types.Constraint
	for _, p := range compiledVetoPatterns() {
		if p.re.MatchString(answer) {
			out = append(out, types.Constraint{
				Kind:        types.ConstraintSafety,
				Severity:    types.SeverityCritical,
				Description: fmt.Sprintf("candidate answer matches veto pattern: %s", p.name),
			})
		}
	}
	return out
}

func (t *Truth) injectionScan(answer string) []types.Constraint {
	if len(answer) == 0 {
		return nil
	}
	result := promptGuard.Detect(context.Background(), answer)
	if result.Safe {
		return nil
	}
	return []types.Constraint{{
		Kind:        types.ConstraintSafety,
		Severity:    types.SeverityError,
		Description: "candidate answer contains a likely prompt-injection pattern",
		Suggestion:  "regenerate without echoing instructions found in retrieved context",
	}}
}

func (t *Truth) credentialScan(answer string) []types.Constraint {
	spans := t.patterns.FindAll(answer)
	if len(spans) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []types.Constraint
	for _, s := range spans {
		if seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, types.Constraint{
			Kind:        types.ConstraintSafety,
			Severity:    types.SeverityError,
			Description: fmt.Sprintf("candidate answer exposes a %s-shaped credential", s.Category),
			Suggestion:  "read credentials from a secrets manager or environment variable instead of embedding them literally",
		})
	}
	return out
}

var declaredVRAM = regexp.MustCompile(`(?i)(\d+)\s*(gb|mb)\s*(vram|gpu memory)`)
var declaredPower = regexp.MustCompile(`(?i)(\d+)\s*w(att)?s?\b.*?(power|tdp)`)

func (t *Truth) hardwareCheck(answer string, prefetch PrefetchData) []types.Constraint {
	var out []types.Constraint
	if m := declaredVRAM.FindStringSubmatch(answer); m != nil {
		value := parseIntSafe(m[1])
		if strings.EqualFold(m[2], "gb") {
			value *= 1024
		}
		if value > prefetch.HardwareLimits.MaxVRAMMB {
			out = append(out, types.Constraint{
				Kind:        types.ConstraintHardware,
				Severity:    types.SeverityError,
				Description: fmt.Sprintf("declared VRAM requirement %d MB exceeds oracle limit %d MB", value, prefetch.HardwareLimits.MaxVRAMMB),
				Suggestion:  "reduce model/batch size or target quantization",
			})
		}
	}
	if m := declaredPower.FindStringSubmatch(answer); m != nil {
		value := parseIntSafe(m[1])
		if value > prefetch.HardwareLimits.MaxPowerW {
			out = append(out, types.Constraint{
				Kind:        types.ConstraintHardware,
				Severity:    types.SeverityWarning,
				Description: fmt.Sprintf("declared power draw %dW exceeds oracle limit %dW", value, prefetch.HardwareLimits.MaxPowerW),
				Suggestion:  "verify power supply headroom before deployment",
			})
		}
	}
	if prefetch.CurrentTempC > prefetch.HardwareLimits.ThermalCeiling {
		out = append(out, types.Constraint{
			Kind:        types.ConstraintHardware,
			Severity:    types.SeverityWarning,
			Description: fmt.Sprintf("current temperature %.1fC exceeds thermal ceiling %.1fC", prefetch.CurrentTempC, prefetch.HardwareLimits.ThermalCeiling),
		})
	}
	return out
}

// factCheck extracts declarative sentences claiming a [SOURCE: path] and
// flags those not present in the manifest's retrieval hints as unverified,
// per the spec's Open Question resolution: an uncited claim is treated as
// a warning rather than an error absent an explicit policy override.
var sourceClaimPattern = regexp.MustCompile(`\[SOURCE:\s*([^\]]+)\]`)

func (t *Truth) factCheck(manifest types.Manifest, answer string) []types.Constraint {
	known := map[string]bool{}
	for _, p := range manifest.ContextHints.RelevantPaths {
		known[p] = true
	}
	var out []types.Constraint
	for _, m := range sourceClaimPattern.FindAllStringSubmatch(answer, -1) {
		path := strings.TrimSpace(m[1])
		if !known[path] {
			out = append(out, types.Constraint{
				Kind:        types.ConstraintFact,
				Severity:    types.SeverityWarning,
				Description: fmt.Sprintf("citation [SOURCE: %s] is not among the retrieved context paths", path),
				Source:      path,
			})
		}
	}
	return out
}

var undefinedSymbolHint = regexp.MustCompile(`(?i)\bTODO\b|\bFIXME\b|\bundefined\b`)

func (t *Truth) qualityCheck(answer string) []types.Constraint {
	if undefinedSymbolHint.MatchString(answer) {
		return []types.Constraint{{
			Kind:        types.ConstraintQuality,
			Severity:    types.SeverityWarning,
			Description: "candidate answer appears incomplete (TODO/FIXME/undefined marker present)",
		}}
	}
	if strings.Count(answer, "{") != strings.Count(answer, "}") {
		return []types.Constraint{{
			Kind:        types.ConstraintQuality,
			Severity:    types.SeverityWarning,
			Description: "candidate answer has unbalanced braces",
		}}
	}
	return nil
}

func hasSeverity(constraints []types.Constraint, sev types.Severity) bool {
	for _, c := range constraints {
		if c.Severity == sev {
			return true
		}
	}
	return false
}

// verdictConfidence: 1.0 minus 0.15 per warning, 0.25 per error, clamped
// at 0; a critical constraint forces confidence to 0.
func verdictConfidence(constraints []types.Constraint) float64 {
	if hasSeverity(constraints, types.SeverityCritical) {
		return 0
	}
	confidence := 1.0
	for _, c := range constraints {
		switch c.Severity {
		case types.SeverityWarning:
			confidence -= 0.15
		case types.SeverityError:
			confidence -= 0.25
		}
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func formatFeedback(constraints []types.Constraint) string {
	if len(constraints) == 0 {
		return ""
	}
	ordered := make([]types.Constraint, len(constraints))
	copy(ordered, constraints)
	sort.SliceStable(ordered, func(i, j int) bool {
		return severityRank(ordered[i].Severity) > severityRank(ordered[j].Severity)
	})

	var b strings.Builder
	for i, c := range ordered {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, strings.ToUpper(string(c.Severity)), c.Description)
		if c.Suggestion != "" {
			fmt.Fprintf(&b, " (suggestion: %s)", c.Suggestion)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func severityRank(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return 3
	case types.SeverityError:
		return 2
	default:
		return 1
	}
}

func parseIntSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Process adapts Truth to the shared Agent capability for uniform
// scheduling/testing; the Consensus Engine calls Prefetch/Verify directly
// in normal operation since Truth's role is split across two phases.
func (t *Truth) Process(ctx context.Context, manifest types.Manifest) (types.AgentOutput, error) {
	start := time.Now()
	prefetch, err := t.Prefetch(ctx, manifest)
	if err != nil {
		return types.AgentOutput{}, err
	}
	verdict, err := t.Verify(ctx, manifest.LogosResponse, prefetch)
	if err != nil {
		return types.AgentOutput{}, err
	}

	result := types.NewAgentOutput("truth", verdict.Feedback, verdict.Confidence, 0, time.Since(start).Milliseconds())
	result.Vote = types.Vote(verdict.Kind)
	if verdict.Kind == types.VerdictApproved {
		result.Vote = types.VoteApprove
	} else if verdict.Kind == types.VerdictNeedsRevision {
		result.Vote = types.VoteRevise
	} else {
		result.Vote = types.VoteVeto
	}
	result.HasVote = true
	result.Metadata["constraints"] = verdict.Constraints
	return result, nil
}

var _ Agent = (*Truth)(nil)
