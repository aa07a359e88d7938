package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/tradeswarm/internal/agent"
)

// handoffPrefix is the directive a participant writes to pass control.
const handoffPrefix = "HANDOFF:"

// HandoffConfig configures a HandoffChain session.
type HandoffConfig struct {
	Participants []agent.Agent
	Summarizer   agent.Agent

	// MaxHops bounds the total number of participant turns (default 20).
	MaxHops int

	// Budget bounds the whole session's wall clock (default 15m).
	Budget time.Duration

	// HopTimeout bounds each individual turn (default 5m).
	HopTimeout time.Duration

	// Window and MinUnique drive the repetition detector: the last Window
	// hops must involve at least MinUnique distinct participants
	// (defaults 8 and 2).
	Window    int
	MinUnique int
}

// HandoffChain is the peer-to-peer debate strategy: control passes between
// participants via explicit handoff directives in their output, under hop,
// wall-clock, and repetition budgets. Exhausting any budget before synthesis
// terminates the session with ErrSessionTimeout.
type HandoffChain struct {
	participants []agent.Agent
	byName       map[string]agent.Agent
	summarizer   agent.Agent
	maxHops      int
	budget       time.Duration
	hopTimeout   time.Duration
	window       int
	minUnique    int
}

// NewHandoffChain validates the configuration and creates a HandoffChain.
func NewHandoffChain(cfg HandoffConfig) (*HandoffChain, error) {
	if len(cfg.Participants) == 0 {
		return nil, fmt.Errorf("swarm: at least one participant required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("swarm: summarizer required")
	}
	byName := make(map[string]agent.Agent, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if _, dup := byName[p.Name()]; dup || p.Name() == cfg.Summarizer.Name() {
			return nil, fmt.Errorf("swarm: duplicate agent name %q in session", p.Name())
		}
		byName[p.Name()] = p
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 20
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 15 * time.Minute
	}
	if cfg.HopTimeout <= 0 {
		cfg.HopTimeout = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 8
	}
	if cfg.MinUnique <= 0 {
		cfg.MinUnique = 2
	}
	return &HandoffChain{
		participants: cfg.Participants,
		byName:       byName,
		summarizer:   cfg.Summarizer,
		maxHops:      cfg.MaxHops,
		budget:       cfg.Budget,
		hopTimeout:   cfg.HopTimeout,
		window:       cfg.Window,
		minUnique:    cfg.MinUnique,
	}, nil
}

// Run executes the handoff chain over the given task, then synthesizes.
func (h *HandoffChain) Run(ctx context.Context, task string) (*Result, error) {
	start := time.Now()
	deadline := start.Add(h.budget)
	res := &Result{
		SessionID:  uuid.NewString(),
		Transcript: make(map[string][]string, len(h.participants)+1),
	}
	res.Transcript[h.summarizer.Name()] = []string{}
	for _, p := range h.participants {
		res.Transcript[p.Name()] = []string{}
	}

	log.Printf("swarm: session %s: starting handoff chain, %d participants, max %d hops",
		res.SessionID, len(h.participants), h.maxHops)

	share := func(from, kind, content string) {
		block := fmt.Sprintf("# %s from %s:\n<input>\n%s\n</input>", kind, from, content)
		for name := range res.Transcript {
			if name != from {
				res.Transcript[name] = append(res.Transcript[name], block)
			}
		}
	}

	current := h.participants[0]
	var history []string

	for hop := 1; ; hop++ {
		if hop > h.maxHops {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("%w: hop limit %d reached", ErrSessionTimeout, h.maxHops)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("%w: wall-clock budget %s exceeded", ErrSessionTimeout, h.budget)
		}
		hopBudget := h.hopTimeout
		if remaining < hopBudget {
			hopBudget = remaining
		}

		prompt := h.buildHopPrompt(task, current, res.Transcript[current.Name()])
		out, err := h.invoke(ctx, current, prompt, hopBudget)
		if err != nil {
			// Per-hop budget expiry terminates the session; any other
			// failure is recorded and control rotates onward.
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				res.Duration = time.Since(start)
				return res, fmt.Errorf("%w: hop %d (%s): %v", ErrSessionTimeout, hop, current.Name(), err)
			}
			perr := &ParticipantError{Participant: current.Name(), Phase: fmt.Sprintf("hop %d", hop), Err: err}
			log.Printf("swarm: session %s: %v", res.SessionID, perr)
			res.Errors = append(res.Errors, perr)
			history = append(history, current.Name())
			current = h.nextAfter(current)
			continue
		}

		share(current.Name(), fmt.Sprintf("Hop %d analysis", hop), out)
		history = append(history, current.Name())

		if h.tooRepetitive(history) {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("%w: fewer than %d distinct participants in last %d hops",
				ErrSessionTimeout, h.minUnique, h.window)
		}

		target := parseHandoff(out)
		if target == "" {
			// No directive: the discussion is complete.
			break
		}
		next, ok := h.byName[target]
		if !ok || target == current.Name() {
			log.Printf("swarm: session %s: hop %d: invalid handoff target %q, rotating",
				res.SessionID, hop, target)
			next = h.nextAfter(current)
		}
		current = next
	}

	prompt := buildSynthesisPrompt(task, res.Transcript[h.summarizer.Name()])
	final, err := h.invoke(ctx, h.summarizer, prompt, h.hopTimeout)
	res.Duration = time.Since(start)
	if err != nil {
		return res, &SummarizerError{Err: err}
	}
	res.Final = final

	log.Printf("swarm: session %s: handoff chain completed in %s after %d hops",
		res.SessionID, res.Duration.Round(time.Millisecond), len(history))
	return res, nil
}

func (h *HandoffChain) invoke(ctx context.Context, a agent.Agent, prompt string, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := a.Process(cctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// buildHopPrompt assembles one turn's prompt: the task, the blocks this
// participant has received so far, and the handoff instructions.
func (h *HandoffChain) buildHopPrompt(task string, current agent.Agent, received []string) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nYou are part of a peer-to-peer debate. Contributions so far:\n<messages>\n")
	b.WriteString(strings.Join(received, "\n\n"))
	b.WriteString("\n</messages>\n\nTeammates you can hand off to: ")

	names := make([]string, 0, len(h.participants)-1)
	for _, p := range h.participants {
		if p.Name() != current.Name() {
			names = append(names, p.Name())
		}
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\n\nAdd your contribution. To pass control to a teammate, end with a line\n")
	b.WriteString("'HANDOFF: <teammate name>'. Omit the handoff line when the debate has\n")
	b.WriteString("covered the question and is ready for a final decision.")
	return b.String()
}

// nextAfter returns the participant following a in list order, wrapping.
func (h *HandoffChain) nextAfter(a agent.Agent) agent.Agent {
	for i, p := range h.participants {
		if p.Name() == a.Name() {
			return h.participants[(i+1)%len(h.participants)]
		}
	}
	return h.participants[0]
}

// tooRepetitive reports whether the last window hops involved fewer than
// minUnique distinct participants.
func (h *HandoffChain) tooRepetitive(history []string) bool {
	if len(history) < h.window {
		return false
	}
	distinct := make(map[string]bool, h.minUnique)
	for _, name := range history[len(history)-h.window:] {
		distinct[name] = true
	}
	return len(distinct) < h.minUnique
}

// parseHandoff extracts the last handoff directive from an agent's output.
func parseHandoff(output string) string {
	target := ""
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, handoffPrefix); ok {
			target = strings.TrimSpace(rest)
		}
	}
	return target
}
