// Package agent implements the three consensus participants — Intent,
// Logic, and Truth — behind a shared capability interface. They are
// modeled as independent concrete types implementing a common Agent set
// rather than an inheritance hierarchy; the Consensus Engine schedules
// them by role, not by type.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sgx-labs/tripartite/internal/types"
)

// Kind distinguishes the typed failure modes an agent can return.
type Kind string

// Supported failure kinds.
const (
	KindModelUnavailable Kind = "model_unavailable"
	KindModelTimeout     Kind = "model_timeout"
	KindParseFailure     Kind = "parse_failure"
)

// Error is a typed AgentError.
type Error struct {
	Kind  Kind
	Agent string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent(%s): %s: %v", e.Agent, e.Msg, e.Err)
	}
	return fmt.Sprintf("agent(%s): %s", e.Agent, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Agent is the capability shared by Intent, Logic, and Truth: given an
// immutable manifest snapshot, produce a normalized AgentOutput.
// is_ready reports whether the agent's backend is currently usable
// without making a network call (an atomic flag, not a live probe).
type Agent interface {
	Process(ctx context.Context, manifest types.Manifest) (types.AgentOutput, error)
	IsReady() bool
	Name() string
}

// readyFlag is the atomic ready-state every concrete agent embeds, per
// the concurrency model's "atomic booleans for ready flags" requirement.
type readyFlag struct {
	ready atomic.Bool
}

func (r *readyFlag) setReady(v bool) { r.ready.Store(v) }

func (r *readyFlag) IsReady() bool { return r.ready.Load() }
