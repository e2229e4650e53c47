// Package consensus drives the bounded-round tripartite protocol: Intent,
// Logic, and Truth are invoked per round, their confidences are
// aggregated, and the round either reaches consensus, requests a
// revision, is vetoed, or exhausts its round budget.
package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/sgx-labs/tripartite/internal/agent"
	"github.com/sgx-labs/tripartite/internal/types"
)

// Config parameterizes a single Run invocation.
type Config struct {
	MaxRounds int     // 1..=10, default 3
	Threshold float64 // 0..=1, default 0.85
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxRounds: 3, Threshold: 0.85}
}

// Engine sequences Intent, Logic, and Truth across bounded rounds and
// aggregates their confidences into a ConsensusOutcome.
type Engine struct {
	intent *agent.Intent
	logic  *agent.Logic
	truth  *agent.Truth
}

// New builds an Engine over the three concrete agents. The Consensus
// Engine holds them behind the capability interface for process/is_ready
// but still knows their concrete roles for scheduling, since Intent runs
// alone and Truth's prefetch/verify split is role-specific.
func New(intent *agent.Intent, logic *agent.Logic, truth *agent.Truth) *Engine {
	return &Engine{intent: intent, logic: logic, truth: truth}
}

type roundResult struct {
	intentOut types.AgentOutput
	logicOut  types.AgentOutput
	verdict   types.Verdict
	err       error
}

// Run drives the consensus protocol on a single (already redacted) prompt.
// The caller's session id is not consumed here; it belongs to the
// Council Orchestrator's redact/reinflate boundary.
func (e *Engine) Run(ctx context.Context, prompt string, cfg Config) (types.ConsensusOutcome, error) {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.85
	}

	if !e.intent.IsReady() || !e.logic.IsReady() || !e.truth.IsReady() {
		return types.ConsensusOutcome{}, errors.New("consensus: one or more agents are not ready")
	}

	manifest := types.Manifest{Telos: prompt, Round: 1}

	// Policy decision (spec §9 Open Question): Intent runs once, on round
	// 1 only; revision feedback is the carrier on subsequent rounds. This
	// choice is recorded in the outcome metadata below.
	intentOut, err := e.intent.Process(ctx, manifest)
	if err != nil {
		return failedOutcome(reasonForAgentError(err), int(manifest.Round)), nil
	}
	if parsed, ok := intentOut.Metadata["manifest"].(types.Manifest); ok {
		parsed.Round = manifest.Round
		manifest = parsed
	}

	for {
		result := e.runPhases(ctx, manifest)
		if result.err != nil {
			return failedOutcome(reasonForAgentError(result.err), int(manifest.Round)), nil
		}

		aggregate := aggregateConfidence(intentOut, result.logicOut, result.verdict)

		if result.verdict.Kind == types.VerdictVeto || result.verdict.HasCritical() {
			return types.ConsensusOutcome{
				Kind:                types.OutcomeVetoed,
				Round:               int(manifest.Round),
				Feedback:            result.verdict.Feedback,
				CriticalConstraints: result.verdict.CriticalConstraints(),
				Metadata:            outcomeMetadata(),
			}, nil
		}

		if result.verdict.Kind == types.VerdictApproved && aggregate >= cfg.Threshold {
			return types.ConsensusOutcome{
				Kind:                types.OutcomeReached,
				Answer:              result.logicOut.Content,
				Round:               int(manifest.Round),
				AggregateConfidence: aggregate,
				Metadata:            outcomeMetadata(),
			}, nil
		}

		if int(manifest.Round) >= cfg.MaxRounds {
			return types.ConsensusOutcome{
				Kind:     types.OutcomeFailed,
				Round:    int(manifest.Round),
				Feedback: result.verdict.Feedback,
				Reason:   "round_limit_reached",
				Metadata: outcomeMetadata(),
			}, nil
		}

		manifest.LogosResponse = result.verdict.Feedback
		manifest.NextRound()
	}
}

// runPhases executes Phase 2 (Logic ‖ Truth-prefetch, an all-or-error
// barrier) followed by Phase 3 (Truth-verify), matching the concurrency
// model's ordering guarantees: Logic and Truth-prefetch are unordered
// relative to each other but both happen-before Truth-verify.
func (e *Engine) runPhases(ctx context.Context, manifest types.Manifest) roundResult {
	type logicResult struct {
		out types.AgentOutput
		err error
	}
	type prefetchResult struct {
		data agent.PrefetchData
		err  error
	}

	logicCh := make(chan logicResult, 1)
	prefetchCh := make(chan prefetchResult, 1)

	go func() {
		out, err := e.logic.Process(ctx, manifest)
		logicCh <- logicResult{out: out, err: err}
	}()
	go func() {
		data, err := e.truth.Prefetch(ctx, manifest)
		prefetchCh <- prefetchResult{data: data, err: err}
	}()

	lr := <-logicCh
	pr := <-prefetchCh
	if lr.err != nil {
		return roundResult{err: lr.err}
	}
	if pr.err != nil {
		return roundResult{err: pr.err}
	}

	verdict, err := e.truth.Verify(ctx, lr.out.Content, pr.data)
	if err != nil {
		return roundResult{err: err}
	}

	return roundResult{logicOut: lr.out, verdict: verdict}
}

// aggregateConfidence computes A = 0.2*Intent + 0.5*Logic + 0.3*Truth.
func aggregateConfidence(intentOut, logicOut types.AgentOutput, verdict types.Verdict) float64 {
	return 0.2*intentOut.Confidence + 0.5*logicOut.Confidence + 0.3*verdict.Confidence
}

func outcomeMetadata() map[string]any {
	return map[string]any{"intent_rerun_policy": "round_one_only"}
}

func failedOutcome(reason string, round int) types.ConsensusOutcome {
	return types.ConsensusOutcome{
		Kind:     types.OutcomeFailed,
		Round:    round,
		Reason:   reason,
		Metadata: outcomeMetadata(),
	}
}

func reasonForAgentError(err error) string {
	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		switch agentErr.Kind {
		case agent.KindParseFailure:
			return "intent_parse"
		case agent.KindModelTimeout, agent.KindModelUnavailable:
			return "agent_unavailable"
		}
	}
	return fmt.Sprintf("agent_error: %v", err)
}
