// Package reflection closes the learning loop after a trading outcome is
// known: it has a reflector agent review each component's decision against
// the realized result and writes the lesson back into that component's
// situational memory collection.
package reflection

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/seenimoa/tradeswarm/internal/agent"
	"github.com/seenimoa/tradeswarm/internal/memory"
)

// Component names, in the fixed order ReflectOnAll visits them.
const (
	ComponentBull        = "bull_researcher"
	ComponentBear        = "bear_researcher"
	ComponentTrader      = "trader"
	ComponentInvestJudge = "invest_judge"
	ComponentRiskManager = "risk_manager"
)

// Components lists every component ReflectOnAll reviews.
var Components = []string{
	ComponentBull,
	ComponentBear,
	ComponentTrader,
	ComponentInvestJudge,
	ComponentRiskManager,
}

var componentLabels = map[string]string{
	ComponentBull:        "BULL RESEARCHER",
	ComponentBear:        "BEAR RESEARCHER",
	ComponentTrader:      "TRADER",
	ComponentInvestJudge: "INVESTMENT JUDGE",
	ComponentRiskManager: "RISK MANAGER",
}

// DebateRecord holds the surviving text of one settled debate.
type DebateRecord struct {
	Bull  string `json:"bull,omitempty"`
	Bear  string `json:"bear,omitempty"`
	Judge string `json:"judge"`
}

// State carries the decision texts of one completed analysis session, the
// inputs the reflector reviews against the outcome.
type State struct {
	MarketReport       string `json:"market_report"`
	SentimentReport    string `json:"sentiment_report"`
	NewsReport         string `json:"news_report"`
	FundamentalsReport string `json:"fundamentals_report"`

	InvestmentDebate DebateRecord `json:"investment_debate"`
	TraderPlan       string       `json:"trader_plan"`
	RiskDebate       DebateRecord `json:"risk_debate"`
}

// Situation joins the analyst reports into the market-situation text that
// keys every memory record written during reflection.
func (s State) Situation() string {
	var parts []string
	if s.MarketReport != "" {
		parts = append(parts, "MARKET REPORT:\n"+s.MarketReport)
	}
	if s.SentimentReport != "" {
		parts = append(parts, "SENTIMENT REPORT:\n"+s.SentimentReport)
	}
	if s.NewsReport != "" {
		parts = append(parts, "NEWS REPORT:\n"+s.NewsReport)
	}
	if s.FundamentalsReport != "" {
		parts = append(parts, "FUNDAMENTALS REPORT:\n"+s.FundamentalsReport)
	}
	return strings.Join(parts, "\n\n")
}

// decision returns the component's decision text from the state.
func (s State) decision(component string) string {
	switch component {
	case ComponentBull:
		return s.InvestmentDebate.Bull
	case ComponentBear:
		return s.InvestmentDebate.Bear
	case ComponentTrader:
		return s.TraderPlan
	case ComponentInvestJudge:
		return s.InvestmentDebate.Judge
	case ComponentRiskManager:
		return s.RiskDebate.Judge
	}
	return ""
}

// Appender is the slice of the memory store the driver writes through.
type Appender interface {
	Append(ctx context.Context, pairs []memory.Pair) (int, error)
}

// Driver runs post-outcome reflections. Stores maps a component name to the
// memory collection its lessons are written to; a missing entry means the
// reflection is returned but not persisted.
type Driver struct {
	reflector agent.Agent
	stores    map[string]Appender
}

// NewDriver creates a reflection driver around one reflector agent.
func NewDriver(reflector agent.Agent, stores map[string]Appender) *Driver {
	if stores == nil {
		stores = map[string]Appender{}
	}
	return &Driver{reflector: reflector, stores: stores}
}

// Reflect reviews one component's decision against the outcome and appends
// the lesson to the given store. It never returns an error: an agent failure
// yields a degraded placeholder reflection, and a memory-append failure is
// logged while the reflection text is still returned.
func (d *Driver) Reflect(ctx context.Context, component, decision, situation, outcome string, store Appender) string {
	label := componentLabels[component]
	if label == "" {
		label = strings.ToUpper(component)
	}

	prompt := fmt.Sprintf(
		"Reflect on this %s decision:\n\n"+
			"DECISION/ANALYSIS:\n%s\n\n"+
			"MARKET SITUATION:\n%s\n\n"+
			"PERFORMANCE RESULTS:\n%s\n\n"+
			"Please provide a comprehensive reflection and analysis.",
		label, decision, situation, outcome)

	result, err := d.reflector.Process(ctx, prompt)
	if err != nil {
		log.Printf("reflection: %s: reflector failed: %v", component, err)
		return fmt.Sprintf(
			"Reflection for %s: unable to generate detailed reflection: %v. Decision: %s",
			component, err, truncate(decision, 200))
	}
	reflection := result.Content

	if store != nil {
		if _, err := store.Append(ctx, []memory.Pair{{Situation: situation, Recommendation: reflection}}); err != nil {
			// The caller already has the useful artifact; losing the
			// memory write must not lose the reflection.
			log.Printf("reflection: %s: storing reflection failed: %v", component, err)
		}
	}
	return reflection
}

// ReflectOnAll reflects on every component in the fixed list, reading each
// decision from the state. One component's failure never affects the others.
func (d *Driver) ReflectOnAll(ctx context.Context, state State, outcome string) map[string]string {
	situation := state.Situation()
	reflections := make(map[string]string, len(Components))
	for _, component := range Components {
		log.Printf("reflection: generating reflection for %s", component)
		reflections[component] = d.Reflect(ctx, component, state.decision(component), situation, outcome, d.stores[component])
	}
	return reflections
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
