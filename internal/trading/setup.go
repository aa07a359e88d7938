package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/seenimoa/tradeswarm/internal/agent"
	"github.com/seenimoa/tradeswarm/internal/config"
	"github.com/seenimoa/tradeswarm/internal/dataflow"
	"github.com/seenimoa/tradeswarm/internal/llm"
	"github.com/seenimoa/tradeswarm/internal/memory"
	"github.com/seenimoa/tradeswarm/internal/reflection"
	"github.com/seenimoa/tradeswarm/internal/report"
	"github.com/seenimoa/tradeswarm/internal/swarm"
)

// Env is the fully wired runtime: provider router, agent roster, pipeline
// graph, memory stores, report store, and reflection driver.
type Env struct {
	Provider   *llm.Router
	Graph      *Graph
	Stores     map[string]*memory.Store
	Reports    *report.Store
	Reflection *reflection.Driver
}

// BuildEnv wires the whole system from configuration.
func BuildEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	router, err := llm.NewRouterFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("trading: llm setup: %w", err)
	}

	primary, secondary, err := llm.NewEmbeddersFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("trading: embedder setup: %w", err)
	}

	var backend memory.Backend
	switch cfg.Memory.Backend {
	case "chroma":
		backend, err = memory.NewChromaBackend(cfg.Memory.ChromaURL)
	default:
		backend, err = memory.NewLocalBackend(cfg.Memory.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("trading: memory backend: %w", err)
	}

	memCfg := memory.Config{Backend: backend, Primary: primary, Secondary: secondary}
	stores := make(map[string]*memory.Store, 5)
	for _, name := range []string{
		agent.BullMemory, agent.BearMemory, agent.TraderMemory,
		agent.InvestJudgeMemory, agent.RiskManagerMemory,
	} {
		store, err := memory.Open(ctx, name, memCfg)
		if err != nil {
			return nil, fmt.Errorf("trading: opening %s: %w", name, err)
		}
		stores[name] = store
	}

	reports, err := report.NewStore(cfg.Report.Dir)
	if err != nil {
		return nil, err
	}

	quick := &llm.ChatOptions{
		Model:       cfg.LLM.QuickModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	deep := &llm.ChatOptions{
		Model:       cfg.LLM.DeepModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}

	data := dataflow.NewService()

	roster := Roster{
		MarketAnalyst:       agent.NewMarketAnalyst(router, data, quick),
		SocialAnalyst:       agent.NewSocialAnalyst(router, data, quick),
		NewsAnalyst:         agent.NewNewsAnalyst(router, data, quick),
		FundamentalsAnalyst: agent.NewFundamentalsAnalyst(router, data, quick),
		BullResearcher:      agent.NewBullResearcher(router, stores[agent.BullMemory], deep),
		BearResearcher:      agent.NewBearResearcher(router, stores[agent.BearMemory], deep),
		ResearchManager:     agent.NewResearchManager(router, stores[agent.InvestJudgeMemory], deep),
		Trader:              agent.NewTrader(router, stores[agent.TraderMemory], quick),
		RiskyDebator:        agent.NewRiskyDebator(router, quick),
		SafeDebator:         agent.NewSafeDebator(router, quick),
		NeutralDebator:      agent.NewNeutralDebator(router, quick),
		RiskManager:         agent.NewRiskManager(router, stores[agent.RiskManagerMemory], deep),
	}

	mode, err := swarm.ParseMode(cfg.Debate.Mode)
	if err != nil {
		return nil, err
	}

	graph, err := NewGraph(Config{
		Roster:        roster,
		Reports:       reports,
		Strategy:      cfg.Debate.Strategy,
		Mode:          mode,
		Rounds:        cfg.Debate.Rounds,
		MaxConcurrent: cfg.Debate.MaxConcurrent,
		CallTimeout:   time.Duration(cfg.Debate.CallTimeoutSec) * time.Second,
		Handoff: HandoffSettings{
			MaxHops:    cfg.Debate.Handoff.MaxHops,
			Budget:     time.Duration(cfg.Debate.Handoff.BudgetSec) * time.Second,
			HopTimeout: time.Duration(cfg.Debate.Handoff.HopTimeoutSec) * time.Second,
			Window:     cfg.Debate.Handoff.Window,
			MinUnique:  cfg.Debate.Handoff.MinUnique,
		},
	})
	if err != nil {
		return nil, err
	}

	driver := reflection.NewDriver(agent.NewReflector(router, quick), map[string]reflection.Appender{
		reflection.ComponentBull:        stores[agent.BullMemory],
		reflection.ComponentBear:        stores[agent.BearMemory],
		reflection.ComponentTrader:      stores[agent.TraderMemory],
		reflection.ComponentInvestJudge: stores[agent.InvestJudgeMemory],
		reflection.ComponentRiskManager: stores[agent.RiskManagerMemory],
	})

	return &Env{
		Provider:   router,
		Graph:      graph,
		Stores:     stores,
		Reports:    reports,
		Reflection: driver,
	}, nil
}
