package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/seenimoa/tradeswarm/internal/agent"
	"github.com/seenimoa/tradeswarm/internal/llm"
	"github.com/seenimoa/tradeswarm/internal/memory"
)

type stubReflector struct {
	reply   string
	failOn  string // substring of the prompt that triggers a failure
	prompts []string
}

func (s *stubReflector) Name() string         { return "reflector" }
func (s *stubReflector) Role() string         { return "Reflection Analyst" }
func (s *stubReflector) SystemPrompt() string { return "" }
func (s *stubReflector) Tools() []llm.Tool    { return nil }

func (s *stubReflector) Process(ctx context.Context, task string) (*agent.AgentResult, error) {
	return s.ProcessWithMessages(ctx, task, nil)
}

func (s *stubReflector) ProcessWithMessages(ctx context.Context, task string, _ []llm.Message) (*agent.AgentResult, error) {
	s.prompts = append(s.prompts, task)
	if s.failOn != "" && strings.Contains(task, s.failOn) {
		return nil, errors.New("model unavailable")
	}
	return &agent.AgentResult{AgentName: "reflector", Content: s.reply}, nil
}

type fakeAppender struct {
	pairs []memory.Pair
	err   error
}

func (f *fakeAppender) Append(ctx context.Context, pairs []memory.Pair) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.pairs = append(f.pairs, pairs...)
	return len(pairs), nil
}

func TestReflectStoresLesson(t *testing.T) {
	reflector := &stubReflector{reply: "lesson: trust the fundamentals"}
	store := &fakeAppender{}
	d := NewDriver(reflector, nil)

	got := d.Reflect(context.Background(), ComponentTrader,
		"FINAL TRANSACTION PROPOSAL: **BUY**", "NVDA rallying on earnings", "returns: +8%", store)

	if got != "lesson: trust the fundamentals" {
		t.Errorf("Reflect = %q", got)
	}
	if len(store.pairs) != 1 {
		t.Fatalf("stored %d pairs, want 1", len(store.pairs))
	}
	if store.pairs[0].Situation != "NVDA rallying on earnings" {
		t.Errorf("stored situation = %q", store.pairs[0].Situation)
	}
	if store.pairs[0].Recommendation != got {
		t.Errorf("stored recommendation = %q", store.pairs[0].Recommendation)
	}

	prompt := reflector.prompts[0]
	for _, want := range []string{"TRADER", "DECISION/ANALYSIS:", "MARKET SITUATION:", "PERFORMANCE RESULTS:", "returns: +8%"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestReflectAgentFailureYieldsPlaceholder(t *testing.T) {
	reflector := &stubReflector{failOn: "DECISION"}
	store := &fakeAppender{}
	d := NewDriver(reflector, nil)

	decision := strings.Repeat("buy aggressively because ", 20)
	got := d.Reflect(context.Background(), ComponentBull, decision, "situation", "outcome", store)

	if !strings.Contains(got, "unable to generate detailed reflection") {
		t.Errorf("placeholder missing error note: %q", got)
	}
	if !strings.Contains(got, decision[:200]) {
		t.Error("placeholder missing truncated decision text")
	}
	if strings.Contains(got, decision) {
		t.Error("placeholder should truncate the decision")
	}
	if len(store.pairs) != 0 {
		t.Error("no memory should be written for a failed reflection")
	}
}

func TestReflectMemoryFailureNonFatal(t *testing.T) {
	reflector := &stubReflector{reply: "the lesson"}
	store := &fakeAppender{err: memory.ErrStorageUnavailable}
	d := NewDriver(reflector, nil)

	got := d.Reflect(context.Background(), ComponentBear, "decision", "situation", "outcome", store)
	if got != "the lesson" {
		t.Errorf("Reflect = %q, reflection must survive a memory failure", got)
	}
}

func TestReflectNilStore(t *testing.T) {
	reflector := &stubReflector{reply: "the lesson"}
	d := NewDriver(reflector, nil)

	if got := d.Reflect(context.Background(), ComponentRiskManager, "decision", "situation", "outcome", nil); got != "the lesson" {
		t.Errorf("Reflect = %q", got)
	}
}

func TestReflectOnAllCoversEveryComponent(t *testing.T) {
	reflector := &stubReflector{reply: "lesson"}
	stores := map[string]Appender{}
	appenders := map[string]*fakeAppender{}
	for _, c := range Components {
		a := &fakeAppender{}
		appenders[c] = a
		stores[c] = a
	}
	d := NewDriver(reflector, stores)

	state := State{
		MarketReport:       "uptrend intact",
		SentimentReport:    "retail euphoric",
		NewsReport:         "earnings beat",
		FundamentalsReport: "margins expanding",
		InvestmentDebate:   DebateRecord{Bull: "bull case", Bear: "bear case", Judge: "go long"},
		TraderPlan:         "FINAL TRANSACTION PROPOSAL: **BUY**",
		RiskDebate:         DebateRecord{Judge: "approved with stop loss"},
	}

	got := d.ReflectOnAll(context.Background(), state, "returns: +5%")
	if len(got) != len(Components) {
		t.Fatalf("got %d reflections, want %d", len(got), len(Components))
	}
	for _, c := range Components {
		if got[c] != "lesson" {
			t.Errorf("%s reflection = %q", c, got[c])
		}
		if len(appenders[c].pairs) != 1 {
			t.Errorf("%s store got %d pairs, want 1", c, len(appenders[c].pairs))
		}
	}

	// Each component's prompt must carry its own decision text.
	wantDecisions := map[string]string{
		ComponentBull:        "bull case",
		ComponentBear:        "bear case",
		ComponentTrader:      "FINAL TRANSACTION PROPOSAL: **BUY**",
		ComponentInvestJudge: "go long",
		ComponentRiskManager: "approved with stop loss",
	}
	for i, c := range Components {
		if !strings.Contains(reflector.prompts[i], wantDecisions[c]) {
			t.Errorf("%s prompt missing its decision text", c)
		}
		if !strings.Contains(reflector.prompts[i], "MARKET REPORT:\nuptrend intact") {
			t.Errorf("%s prompt missing the shared situation", c)
		}
	}
}

func TestReflectOnAllIsolatesFailure(t *testing.T) {
	// The reflector fails only on the trader's prompt.
	reflector := &stubReflector{reply: "lesson", failOn: "TRADER decision"}
	d := NewDriver(reflector, nil)

	state := State{
		MarketReport:     "flat",
		InvestmentDebate: DebateRecord{Bull: "b", Bear: "r", Judge: "j"},
		TraderPlan:       "hold everything",
		RiskDebate:       DebateRecord{Judge: "fine"},
	}

	got := d.ReflectOnAll(context.Background(), state, "returns: 0%")
	if !strings.Contains(got[ComponentTrader], "unable to generate detailed reflection") {
		t.Errorf("trader reflection = %q, want placeholder", got[ComponentTrader])
	}
	for _, c := range []string{ComponentBull, ComponentBear, ComponentInvestJudge, ComponentRiskManager} {
		if got[c] != "lesson" {
			t.Errorf("%s reflection = %q, should be unaffected", c, got[c])
		}
	}
}

func TestStateSituationSkipsEmptyReports(t *testing.T) {
	s := State{MarketReport: "up", NewsReport: "quiet"}
	sit := s.Situation()
	if !strings.Contains(sit, "MARKET REPORT:\nup") || !strings.Contains(sit, "NEWS REPORT:\nquiet") {
		t.Errorf("Situation = %q", sit)
	}
	if strings.Contains(sit, "SENTIMENT") || strings.Contains(sit, "FUNDAMENTALS") {
		t.Errorf("Situation includes empty sections: %q", sit)
	}
}
