// Package council binds the Privacy Proxy to the Consensus Engine and the
// three agents, handling redaction/reinflation at the process boundary so
// the agents and the consensus transition logic never see raw sensitive
// text.
package council

import (
	"context"
	"fmt"

	"github.com/sgx-labs/tripartite/internal/consensus"
	"github.com/sgx-labs/tripartite/internal/redact"
	"github.com/sgx-labs/tripartite/internal/types"
)

// DefaultSessionID is used by the Ask convenience wrapper when the caller
// does not supply one.
const DefaultSessionID = "default"

// Orchestrator is the stable interface the CLI (and any other caller)
// invokes. It is cheap to hold: the proxy, engine, and agents it wraps are
// themselves either immutable or internally synchronized, so a single
// Orchestrator safely serves concurrent Process calls sharing the vault,
// patterns, knowledge store, and model — each call keeps its own session
// id and manifest, which never cross between invocations.
type Orchestrator struct {
	engine *consensus.Engine
	proxy  *redact.Proxy // nil disables redaction entirely
}

// New builds an Orchestrator. proxy may be nil to run with redaction
// disabled (e.g. --no-redact).
func New(engine *consensus.Engine, proxy *redact.Proxy) *Orchestrator {
	return &Orchestrator{engine: engine, proxy: proxy}
}

// Process redacts prompt (if a proxy is attached), runs it through the
// Consensus Engine, and reinflates every user-visible string on the
// terminal outcome before returning it.
func (o *Orchestrator) Process(ctx context.Context, prompt, sessionID string, cfg consensus.Config) (types.ConsensusOutcome, error) {
	if err := types.ValidateSessionID(sessionID); err != nil {
		return types.ConsensusOutcome{}, fmt.Errorf("council: %w", err)
	}

	input := prompt
	if o.proxy != nil {
		redacted, err := o.proxy.Redact(prompt, sessionID)
		if err != nil {
			return types.ConsensusOutcome{}, fmt.Errorf("council: redact: %w", err)
		}
		input = redacted
	}

	outcome, err := o.engine.Run(ctx, input, cfg)
	if err != nil {
		return types.ConsensusOutcome{}, fmt.Errorf("council: %w", err)
	}

	if o.proxy == nil {
		return outcome, nil
	}
	return o.reinflateOutcome(outcome)
}

// Ask wraps Process with the default session id and consensus config.
func (o *Orchestrator) Ask(ctx context.Context, prompt string) (types.ConsensusOutcome, error) {
	return o.Process(ctx, prompt, DefaultSessionID, consensus.DefaultConfig())
}

func (o *Orchestrator) reinflateOutcome(outcome types.ConsensusOutcome) (types.ConsensusOutcome, error) {
	var err error
	if outcome.Answer != "" {
		if outcome.Answer, err = o.proxy.Reinflate(outcome.Answer); err != nil {
			return types.ConsensusOutcome{}, fmt.Errorf("council: reinflate answer: %w", err)
		}
	}
	if outcome.Feedback != "" {
		if outcome.Feedback, err = o.proxy.Reinflate(outcome.Feedback); err != nil {
			return types.ConsensusOutcome{}, fmt.Errorf("council: reinflate feedback: %w", err)
		}
	}
	for i, c := range outcome.CriticalConstraints {
		if c.Description, err = o.proxy.Reinflate(c.Description); err != nil {
			return types.ConsensusOutcome{}, fmt.Errorf("council: reinflate constraint: %w", err)
		}
		outcome.CriticalConstraints[i] = c
	}
	return outcome, nil
}

// UserMessage renders the caller-facing message for a terminal outcome per
// the spec's user-visible failure behaviors.
func UserMessage(outcome types.ConsensusOutcome) string {
	switch outcome.Kind {
	case types.OutcomeReached:
		return outcome.Answer
	case types.OutcomeNeedsRevision:
		return fmt.Sprintf("Consensus not reached after %d rounds\n%s", outcome.Round, outcome.Feedback)
	case types.OutcomeVetoed:
		msg := fmt.Sprintf("Blocked: %s", outcome.Feedback)
		for _, c := range outcome.CriticalConstraints {
			msg += fmt.Sprintf("\n- %s", c.Description)
		}
		return msg
	case types.OutcomeFailed:
		if outcome.Reason == "round_limit_reached" {
			return fmt.Sprintf("Consensus not reached after %d rounds\n%s", outcome.Round, outcome.Feedback)
		}
		return "Request failed. See operator logs for details."
	default:
		return "Request failed. See operator logs for details."
	}
}

// ExitCode maps a terminal outcome to the CLI surface's documented exit
// codes: 0 on Reached, 2 on NeedsRevision/Failed, 3 on Vetoed.
func ExitCode(outcome types.ConsensusOutcome) int {
	switch outcome.Kind {
	case types.OutcomeReached:
		return 0
	case types.OutcomeVetoed:
		return 3
	default:
		return 2
	}
}
