package swarm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tradeswarm/internal/agent"
)

// Config configures a Swarm session.
type Config struct {
	Participants []agent.Agent
	Summarizer   agent.Agent

	// Mode sets the coordination role text used in refinement prompts.
	Mode Mode

	// Rounds is the number of refinement passes (default 1).
	Rounds int

	// MaxConcurrent bounds Phase 1 parallelism (default 1, to stay under
	// provider rate limits).
	MaxConcurrent int

	// CallTimeout bounds every individual agent invocation (default 5m).
	CallTimeout time.Duration
}

// Swarm is the baseline debate strategy: parallel analysis, then in-order
// refinement rounds, then a single synthesis by the summarizer.
type Swarm struct {
	participants []agent.Agent
	summarizer   agent.Agent
	mode         Mode
	rounds       int
	maxConc      int
	callTimeout  time.Duration
}

// New validates the configuration and creates a Swarm.
func New(cfg Config) (*Swarm, error) {
	if len(cfg.Participants) == 0 {
		return nil, fmt.Errorf("swarm: at least one participant required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("swarm: summarizer required")
	}
	seen := map[string]bool{cfg.Summarizer.Name(): true}
	for _, p := range cfg.Participants {
		if seen[p.Name()] {
			return nil, fmt.Errorf("swarm: duplicate agent name %q in session", p.Name())
		}
		seen[p.Name()] = true
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeHybrid
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 1
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	return &Swarm{
		participants: cfg.Participants,
		summarizer:   cfg.Summarizer,
		mode:         cfg.Mode,
		rounds:       cfg.Rounds,
		maxConc:      cfg.MaxConcurrent,
		callTimeout:  cfg.CallTimeout,
	}, nil
}

// Run executes the three-phase debate over the given task.
func (s *Swarm) Run(ctx context.Context, task string) (*Result, error) {
	start := time.Now()
	res := &Result{
		SessionID:  uuid.NewString(),
		Transcript: make(map[string][]string, len(s.participants)+1),
	}
	res.Transcript[s.summarizer.Name()] = []string{}
	for _, p := range s.participants {
		res.Transcript[p.Name()] = []string{}
	}

	log.Printf("swarm: session %s: starting %s debate, %d participants, %d rounds",
		res.SessionID, s.mode, len(s.participants), s.rounds)

	var mu sync.Mutex

	// share appends an attributed block to every agent's transcript except
	// the author's own. A participant must never see its own output echoed
	// back as if it came from a peer.
	share := func(from, kind, content string) {
		block := fmt.Sprintf("# %s from %s:\n<input>\n%s\n</input>", kind, from, content)
		mu.Lock()
		defer mu.Unlock()
		for name := range res.Transcript {
			if name != from {
				res.Transcript[name] = append(res.Transcript[name], block)
			}
		}
	}

	recordFailure := func(p agent.Agent, phase string, err error) {
		perr := &ParticipantError{Participant: p.Name(), Phase: phase, Err: err}
		log.Printf("swarm: session %s: %v", res.SessionID, perr)
		mu.Lock()
		res.Errors = append(res.Errors, perr)
		mu.Unlock()
	}

	// Phase 1: parallel analysis. Results are shared in completion order.
	// A participant failure is recorded and skipped, never fatal, so each
	// goroutine returns nil and the group always runs to completion.
	g := new(errgroup.Group)
	g.SetLimit(s.maxConc)
	for _, p := range s.participants {
		p := p
		g.Go(func() error {
			out, err := s.invoke(ctx, p, task)
			if err != nil {
				recordFailure(p, "fan-out", err)
				return nil
			}
			share(p.Name(), "Analysis", out)
			return nil
		})
	}
	g.Wait()

	// Phase 2: in-order refinement rounds. Sequential by design to keep
	// ordering deterministic and avoid rate-limit amplification.
	role := s.mode.roleText()
	for round := 1; round <= s.rounds; round++ {
		for _, p := range s.participants {
			mu.Lock()
			others := strings.Join(res.Transcript[p.Name()], "\n\n")
			mu.Unlock()

			prompt := fmt.Sprintf(
				"%s\n\n%s\n\nConsider these analyses from other agents:\n<messages>\n%s\n</messages>\n\n"+
					"Provide your refined analysis, addressing their points and strengthening your position.",
				task, role, others)

			out, err := s.invoke(ctx, p, prompt)
			if err != nil {
				recordFailure(p, fmt.Sprintf("refinement round %d", round), err)
				continue
			}
			share(p.Name(), "Refined analysis", out)
		}
	}

	// Phase 3: synthesis. There is no fallback decision-maker, so a
	// summarizer failure aborts the session.
	prompt := buildSynthesisPrompt(task, res.Transcript[s.summarizer.Name()])
	final, err := s.invoke(ctx, s.summarizer, prompt)
	res.Duration = time.Since(start)
	if err != nil {
		return res, &SummarizerError{Err: err}
	}
	res.Final = final

	log.Printf("swarm: session %s: completed in %s with %d participant failures",
		res.SessionID, res.Duration.Round(time.Millisecond), len(res.Errors))
	return res, nil
}

// invoke runs one agent call under the per-call timeout.
func (s *Swarm) invoke(ctx context.Context, a agent.Agent, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	result, err := a.Process(cctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// buildSynthesisPrompt assembles the summarizer's final prompt from the task
// and everything the summarizer has received from the participants.
func buildSynthesisPrompt(task string, received []string) string {
	var b strings.Builder

	b.WriteString("Original Investment Analysis Task:\n<query>\n")
	b.WriteString(task)
	b.WriteString("\n</query>\n\n")

	b.WriteString("You have received comprehensive analyses from the research team. Please synthesize\n")
	b.WriteString("these inputs into a final investment decision and strategy:\n\n")
	b.WriteString("<team_analyses>\n")
	b.WriteString(strings.Join(received, "\n\n"))
	b.WriteString("\n</team_analyses>\n\n")

	b.WriteString("Your synthesis should:\n")
	b.WriteString("1. Evaluate the strength of arguments from both bull and bear perspectives\n")
	b.WriteString("2. Identify the most compelling evidence and reasoning\n")
	b.WriteString("3. Make a clear investment recommendation (Buy, Sell, or Hold)\n")
	b.WriteString("4. Provide a detailed rationale for your decision\n")
	b.WriteString("5. Outline specific implementation strategies\n")
	b.WriteString("6. Address key risks and mitigation approaches\n\n")

	b.WriteString("Create a comprehensive final investment plan that incorporates the best insights\n")
	b.WriteString("from the team while addressing any concerns or contradictions in their analyses.")

	return b.String()
}
