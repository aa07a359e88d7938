// Package trading wires the full analysis pipeline: analyst fan-out,
// research debate, trading decision, risk debate, and report persistence.
// It produces the state the reflection driver later reviews.
package trading

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tradeswarm/internal/agent"
	"github.com/seenimoa/tradeswarm/internal/reflection"
	"github.com/seenimoa/tradeswarm/internal/report"
	"github.com/seenimoa/tradeswarm/internal/swarm"
)

// Debate strategy names.
const (
	StrategySwarm   = "swarm"
	StrategyHandoff = "handoff"
)

// Roster holds the full agent cast of one trading pipeline.
type Roster struct {
	MarketAnalyst       agent.Agent
	SocialAnalyst       agent.Agent
	NewsAnalyst         agent.Agent
	FundamentalsAnalyst agent.Agent

	BullResearcher  agent.Agent
	BearResearcher  agent.Agent
	ResearchManager agent.Agent

	Trader agent.Agent

	RiskyDebator   agent.Agent
	SafeDebator    agent.Agent
	NeutralDebator agent.Agent
	RiskManager    agent.Agent
}

// HandoffSettings configures the handoff debate strategy when selected.
type HandoffSettings struct {
	MaxHops    int
	Budget     time.Duration
	HopTimeout time.Duration
	Window     int
	MinUnique  int
}

// Config configures a Graph.
type Config struct {
	Roster Roster

	// Reports persists phase outputs per subject and date; nil disables
	// persistence (results are still returned in memory).
	Reports *report.Store

	// Strategy selects the debate coordination strategy, StrategySwarm
	// (default) or StrategyHandoff.
	Strategy string

	Mode          swarm.Mode
	Rounds        int
	MaxConcurrent int
	CallTimeout   time.Duration
	Handoff       HandoffSettings
}

// Outcome is the full result of one pipeline run.
type Outcome struct {
	Company string `json:"company"`
	Date    string `json:"date"`

	// State carries every intermediate decision for later reflection.
	State reflection.State `json:"state"`

	ResearchTranscript map[string][]string `json:"research_transcript"`
	RiskTranscript     map[string][]string `json:"risk_transcript"`

	FinalDecision string        `json:"final_decision"`
	Duration      time.Duration `json:"duration"`
}

// Graph orchestrates the five pipeline steps for one company and date.
type Graph struct {
	cfg Config
}

// NewGraph validates the roster and creates a Graph.
func NewGraph(cfg Config) (*Graph, error) {
	required := map[string]agent.Agent{
		"market analyst":       cfg.Roster.MarketAnalyst,
		"social analyst":       cfg.Roster.SocialAnalyst,
		"news analyst":         cfg.Roster.NewsAnalyst,
		"fundamentals analyst": cfg.Roster.FundamentalsAnalyst,
		"bull researcher":      cfg.Roster.BullResearcher,
		"bear researcher":      cfg.Roster.BearResearcher,
		"research manager":     cfg.Roster.ResearchManager,
		"trader":               cfg.Roster.Trader,
		"risky debator":        cfg.Roster.RiskyDebator,
		"safe debator":         cfg.Roster.SafeDebator,
		"neutral debator":      cfg.Roster.NeutralDebator,
		"risk manager":         cfg.Roster.RiskManager,
	}
	for name, a := range required {
		if a == nil {
			return nil, fmt.Errorf("trading: missing %s in roster", name)
		}
	}
	switch cfg.Strategy {
	case "", StrategySwarm, StrategyHandoff:
	default:
		return nil, fmt.Errorf("trading: unknown debate strategy %q", cfg.Strategy)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	return &Graph{cfg: cfg}, nil
}

// Propagate runs the complete pipeline for one company and trade date.
func (g *Graph) Propagate(ctx context.Context, company, date string) (*Outcome, error) {
	start := time.Now()
	log.Printf("trading: starting analysis for %s on %s", company, date)

	out := &Outcome{Company: company, Date: date}

	// Step 1: analyst fan-out.
	g.GatherInformation(ctx, company, date, &out.State)

	// Step 2: bull/bear research debate.
	plan, transcript, err := g.ResearchDebate(ctx, company, date, out.State)
	if err != nil {
		return out, fmt.Errorf("trading: research debate: %w", err)
	}
	out.ResearchTranscript = transcript
	judgeView := transcript[g.cfg.Roster.ResearchManager.Name()]
	out.State.InvestmentDebate = reflection.DebateRecord{
		Bull:  contributionsFrom(judgeView, g.cfg.Roster.BullResearcher.Name()),
		Bear:  contributionsFrom(judgeView, g.cfg.Roster.BearResearcher.Name()),
		Judge: plan,
	}

	// Step 3: trading decision.
	decision, err := g.TradingDecision(ctx, company, date, plan)
	if err != nil {
		return out, fmt.Errorf("trading: trader decision: %w", err)
	}
	out.State.TraderPlan = decision

	// Step 4: risk debate.
	final, riskTranscript, err := g.RiskDebate(ctx, company, date, decision)
	if err != nil {
		return out, fmt.Errorf("trading: risk debate: %w", err)
	}
	out.RiskTranscript = riskTranscript
	out.State.RiskDebate = reflection.DebateRecord{Judge: final}
	out.FinalDecision = final

	out.Duration = time.Since(start)
	log.Printf("trading: analysis for %s completed in %s", company, out.Duration.Round(time.Second))
	return out, nil
}

// GatherInformation runs the four analysts concurrently and fills the
// analyst reports in the state. An analyst failure is logged and leaves an
// error note in its report slot; it never aborts the pipeline.
func (g *Graph) GatherInformation(ctx context.Context, company, date string, state *reflection.State) {
	type job struct {
		a       agent.Agent
		section string
		slot    *string
	}
	jobs := []job{
		{g.cfg.Roster.MarketAnalyst, report.SectionMarketReport, &state.MarketReport},
		{g.cfg.Roster.SocialAnalyst, report.SectionSentimentReport, &state.SentimentReport},
		{g.cfg.Roster.NewsAnalyst, report.SectionNewsReport, &state.NewsReport},
		{g.cfg.Roster.FundamentalsAnalyst, report.SectionFundamentalsReport, &state.FundamentalsReport},
	}

	limit := g.cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	grp := new(errgroup.Group)
	grp.SetLimit(limit)
	for _, j := range jobs {
		j := j
		grp.Go(func() error {
			prompt := fmt.Sprintf("Analyze %s for the trade date %s.", company, date)
			cctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			result, err := j.a.Process(cctx, prompt)
			cancel()
			if err != nil {
				log.Printf("trading: analyst %s failed: %v", j.a.Name(), err)
				*j.slot = fmt.Sprintf("Error: analysis unavailable: %v", err)
				return nil
			}
			*j.slot = result.Content
			g.save(company, date, j.section, result.Content)
			return nil
		})
	}
	grp.Wait()
}

// ResearchDebate runs the bull/bear debate, judged by the research manager,
// and returns the investment plan plus the debate transcript.
func (g *Graph) ResearchDebate(ctx context.Context, company, date string, state reflection.State) (string, map[string][]string, error) {
	debate, err := g.newDebate(
		[]agent.Agent{g.cfg.Roster.BullResearcher, g.cfg.Roster.BearResearcher},
		g.cfg.Roster.ResearchManager)
	if err != nil {
		return "", nil, err
	}

	task := fmt.Sprintf(
		"Debate and decide on an investment plan for %s for the trade date %s based on the following reports:\n\n%s",
		company, date, state.Situation())

	res, err := debate.Run(ctx, task)
	if err != nil {
		return "", transcriptOf(res), err
	}

	g.save(company, date, report.SectionInvestmentPlan, res.Final)
	return res.Final, res.Transcript, nil
}

// TradingDecision turns the investment plan into a concrete trade decision.
// The trader is a single mandatory agent, so its failure is fatal.
func (g *Graph) TradingDecision(ctx context.Context, company, date, plan string) (string, error) {
	prompt := fmt.Sprintf(
		"Based on the following investment plan for %s for the trade date %s, what is your final trade decision?\n\n%s",
		company, date, plan)

	cctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	result, err := g.cfg.Roster.Trader.Process(cctx, prompt)
	if err != nil {
		return "", err
	}

	g.save(company, date, report.SectionTraderDecision, result.Content)
	return result.Content, nil
}

// RiskDebate has the three risk debators argue over the trader's decision,
// judged by the risk manager, and returns the final decision.
func (g *Graph) RiskDebate(ctx context.Context, company, date, traderDecision string) (string, map[string][]string, error) {
	debate, err := g.newDebate(
		[]agent.Agent{g.cfg.Roster.RiskyDebator, g.cfg.Roster.SafeDebator, g.cfg.Roster.NeutralDebator},
		g.cfg.Roster.RiskManager)
	if err != nil {
		return "", nil, err
	}

	task := fmt.Sprintf(
		"Evaluate the risk of the following trading decision for %s for the trade date %s and settle on the final course of action:\n\n%s",
		company, date, traderDecision)

	res, err := debate.Run(ctx, task)
	if err != nil {
		return "", transcriptOf(res), err
	}

	g.save(company, date, report.SectionFinalDecision, res.Final)
	return res.Final, res.Transcript, nil
}

func (g *Graph) newDebate(participants []agent.Agent, summarizer agent.Agent) (swarm.Strategy, error) {
	if g.cfg.Strategy == StrategyHandoff {
		return swarm.NewHandoffChain(swarm.HandoffConfig{
			Participants: participants,
			Summarizer:   summarizer,
			MaxHops:      g.cfg.Handoff.MaxHops,
			Budget:       g.cfg.Handoff.Budget,
			HopTimeout:   g.cfg.Handoff.HopTimeout,
			Window:       g.cfg.Handoff.Window,
			MinUnique:    g.cfg.Handoff.MinUnique,
		})
	}
	return swarm.New(swarm.Config{
		Participants:  participants,
		Summarizer:    summarizer,
		Mode:          g.cfg.Mode,
		Rounds:        g.cfg.Rounds,
		MaxConcurrent: g.cfg.MaxConcurrent,
		CallTimeout:   g.cfg.CallTimeout,
	})
}

// save persists one section; report I/O never fails the pipeline.
func (g *Graph) save(company, date, section, content string) {
	if g.cfg.Reports == nil {
		return
	}
	if err := g.cfg.Reports.Save(company, date, section, content); err != nil {
		log.Printf("trading: saving %s report: %v", section, err)
	}
}

// contributionsFrom extracts one agent's attributed blocks from a transcript
// entry. The summarizer's entry sees every participant's contributions, so
// it is the canonical record to extract from.
func contributionsFrom(blocks []string, name string) string {
	marker := "from " + name + ":"
	var out []string
	for _, b := range blocks {
		if strings.Contains(b, marker) {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}

func transcriptOf(res *swarm.Result) map[string][]string {
	if res == nil {
		return nil
	}
	return res.Transcript
}
