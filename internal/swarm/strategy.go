// Package swarm coordinates multi-agent debate sessions. A session drives a
// fixed set of participant agents plus one summarizer through a structured
// protocol and returns the summarizer's final text together with the full
// per-agent transcript. Two strategies are provided: the three-phase Swarm
// (parallel analysis, in-order refinement, synthesis) and the peer-to-peer
// HandoffChain with hop and wall-clock budgets.
package swarm

import (
	"context"
	"fmt"
	"time"
)

// Mode selects the coordination style injected into refinement prompts.
// It changes role text only, never the protocol.
type Mode string

const (
	ModeCollaborative Mode = "collaborative"
	ModeCompetitive   Mode = "competitive"
	ModeHybrid        Mode = "hybrid"
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCollaborative, ModeCompetitive, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("swarm: unknown coordination mode %q", s)
}

// roleText returns the coordination role descriptor for refinement prompts.
func (m Mode) roleText() string {
	switch m {
	case ModeCollaborative:
		return "You are a Collaborative Agent - Focus on building upon others' insights and finding common ground"
	case ModeCompetitive:
		return "You are a Competitive Agent - Focus on challenging others' views and presenting unique solutions"
	default:
		return "You are a Hybrid Agent - Balance cooperation and innovation, both supporting and challenging ideas"
	}
}

// Result is the outcome of one debate session.
type Result struct {
	SessionID string `json:"session_id"`

	// Final is the summarizer's synthesis, the session's decision text.
	Final string `json:"final"`

	// Transcript maps each agent name (participants and summarizer) to the
	// attributed blocks it received from the other agents, in arrival order.
	Transcript map[string][]string `json:"transcript"`

	// Errors collects the non-fatal participant failures of the session.
	Errors []error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Strategy runs one debate session over a task. Implementations are
// stateless across sessions; one instance drives one session at a time.
type Strategy interface {
	Run(ctx context.Context, task string) (*Result, error)
}
