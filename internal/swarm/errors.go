package swarm

import (
	"errors"
	"fmt"
)

// ErrSessionTimeout reports that a handoff session ran out of hops, wall
// clock, or degenerated into repetition before reaching synthesis.
var ErrSessionTimeout = errors.New("swarm: session budget exhausted")

// ParticipantError records a single participant's failure during fan-out or
// refinement. The session continues without that contribution.
type ParticipantError struct {
	Participant string
	Phase       string
	Err         error
}

func (e *ParticipantError) Error() string {
	return fmt.Sprintf("swarm: participant %s failed during %s: %v", e.Participant, e.Phase, e.Err)
}

func (e *ParticipantError) Unwrap() error { return e.Err }

// SummarizerError is fatal: without a synthesis there is no session result.
type SummarizerError struct {
	Err error
}

func (e *SummarizerError) Error() string {
	return fmt.Sprintf("swarm: summarizer failed: %v", e.Err)
}

func (e *SummarizerError) Unwrap() error { return e.Err }
