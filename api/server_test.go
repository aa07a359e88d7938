package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/tradeswarm/internal/agent"
	"github.com/seenimoa/tradeswarm/internal/config"
	"github.com/seenimoa/tradeswarm/internal/llm"
	"github.com/seenimoa/tradeswarm/internal/memory"
	"github.com/seenimoa/tradeswarm/internal/reflection"
	"github.com/seenimoa/tradeswarm/internal/report"
	"github.com/seenimoa/tradeswarm/internal/trading"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type stubAgent struct {
	name  string
	reply string
}

func (s *stubAgent) Name() string         { return s.name }
func (s *stubAgent) Role() string         { return s.name }
func (s *stubAgent) SystemPrompt() string { return "" }
func (s *stubAgent) Tools() []llm.Tool    { return nil }

func (s *stubAgent) Process(ctx context.Context, task string) (*agent.AgentResult, error) {
	return &agent.AgentResult{AgentName: s.name, Content: s.reply}, nil
}

func (s *stubAgent) ProcessWithMessages(ctx context.Context, task string, _ []llm.Message) (*agent.AgentResult, error) {
	return s.Process(ctx, task)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string { return "fake" }

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := float32(len(text)%7 + 1)
	return []float32{n, n / 2, 1}, nil
}

// testEnv builds a fully wired runtime from stub agents, a local memory
// backend, and temp-dir report storage. No network, no real LLM.
func testEnv(t *testing.T) *trading.Env {
	t.Helper()

	backend, err := memory.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	memCfg := memory.Config{Backend: backend, Primary: fakeEmbedder{}}
	stores := map[string]*memory.Store{}
	for _, name := range []string{agent.BullMemory, agent.TraderMemory} {
		store, err := memory.Open(context.Background(), name, memCfg)
		if err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
		stores[name] = store
	}

	reports, err := report.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	roster := trading.Roster{
		MarketAnalyst:       &stubAgent{name: "market_analyst", reply: "uptrend"},
		SocialAnalyst:       &stubAgent{name: "social_analyst", reply: "bullish chatter"},
		NewsAnalyst:         &stubAgent{name: "news_analyst", reply: "earnings beat"},
		FundamentalsAnalyst: &stubAgent{name: "fundamentals_analyst", reply: "strong margins"},
		BullResearcher:      &stubAgent{name: "bull_researcher", reply: "bull case"},
		BearResearcher:      &stubAgent{name: "bear_researcher", reply: "bear case"},
		ResearchManager:     &stubAgent{name: "invest_judge", reply: "plan: go long"},
		Trader:              &stubAgent{name: "trader", reply: "FINAL TRANSACTION PROPOSAL: **BUY**"},
		RiskyDebator:        &stubAgent{name: "risky_debator", reply: "push harder"},
		SafeDebator:         &stubAgent{name: "safe_debator", reply: "hedge first"},
		NeutralDebator:      &stubAgent{name: "neutral_debator", reply: "balance both"},
		RiskManager:         &stubAgent{name: "risk_manager", reply: "approved: buy"},
	}
	graph, err := trading.NewGraph(trading.Config{
		Roster:      roster,
		Reports:     reports,
		CallTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	driver := reflection.NewDriver(&stubAgent{name: "reflector", reply: "lesson"}, nil)

	return &trading.Env{
		Provider:   llm.NewRouter("none"),
		Graph:      graph,
		Stores:     stores,
		Reports:    reports,
		Reflection: driver,
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Reflection.MaxMatches = 2
	return NewServerWithEnv(cfg, testEnv(t))
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

// decodeData remarshals the envelope's data field into out.
func decodeData(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-encoding data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Handler tests
// ════════════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)
	rec, resp := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
}

func TestHandleAnalyze(t *testing.T) {
	srv := testServer(t)
	rec, resp := doRequest(t, srv, http.MethodPost, "/api/v1/analyze",
		AnalyzeRequest{Company: "NVDA", Date: "2026-08-28"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("error = %q", resp.Error)
	}

	var out trading.Outcome
	decodeData(t, resp, &out)
	if out.FinalDecision != "approved: buy" {
		t.Errorf("FinalDecision = %q", out.FinalDecision)
	}
	if out.State.MarketReport != "uptrend" {
		t.Errorf("MarketReport = %q", out.State.MarketReport)
	}
	if out.Company != "NVDA" || out.Date != "2026-08-28" {
		t.Errorf("Company/Date = %q/%q", out.Company, out.Date)
	}
}

func TestHandleAnalyzeValidation(t *testing.T) {
	srv := testServer(t)

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing company: status = %d", rec.Code)
	}

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/analyze",
		AnalyzeRequest{Company: "NVDA", Date: "28-08-2026"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d", rec.Code)
	}

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/analyze",
		AnalyzeRequest{Company: "../../etc/passwd"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad ticker: status = %d", rec.Code)
	}
}

func TestHandleMemoriesRoundTrip(t *testing.T) {
	srv := testServer(t)

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/v1/memories/bull_memory",
		MemoriesAddRequest{Pairs: []memory.Pair{
			{Situation: "high inflation, rates rising", Recommendation: "reduce growth exposure"},
		}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var added map[string]int
	decodeData(t, resp, &added)
	if added["inserted"] != 1 {
		t.Fatalf("inserted = %d", added["inserted"])
	}

	rec, resp = doRequest(t, srv, http.MethodPost, "/api/v1/memories/bull_memory/query",
		MemoriesQueryRequest{Situation: "high inflation, rates rising", K: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("query: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var matches []memory.Match
	decodeData(t, resp, &matches)
	if len(matches) != 1 {
		t.Fatalf("matches = %v", matches)
	}
	if matches[0].Recommendation != "reduce growth exposure" {
		t.Errorf("Recommendation = %q", matches[0].Recommendation)
	}

	rec, resp = doRequest(t, srv, http.MethodGet, "/api/v1/memories/bull_memory/count", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("count: status = %d", rec.Code)
	}
	var counted map[string]int
	decodeData(t, resp, &counted)
	if counted["count"] != 1 {
		t.Errorf("count = %d", counted["count"])
	}
}

func TestHandleMemoriesQueryRequiresSituation(t *testing.T) {
	srv := testServer(t)
	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/memories/bull_memory/query",
		MemoriesQueryRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleMemoriesUnknownCollection(t *testing.T) {
	srv := testServer(t)
	rec, resp := doRequest(t, srv, http.MethodGet, "/api/v1/memories/nope/count", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if resp.Success {
		t.Error("expected error envelope")
	}
}

func TestHandleReflect(t *testing.T) {
	srv := testServer(t)
	rec, resp := doRequest(t, srv, http.MethodPost, "/api/v1/reflect", ReflectRequest{
		State:   reflection.State{MarketReport: "up", TraderPlan: "buy"},
		Outcome: "returns: +5%",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var reflections map[string]string
	decodeData(t, resp, &reflections)
	if len(reflections) != len(reflection.Components) {
		t.Errorf("got %d reflections, want %d", len(reflections), len(reflection.Components))
	}
	for component, text := range reflections {
		if text != "lesson" {
			t.Errorf("%s = %q", component, text)
		}
	}
}

func TestHandleReflectRequiresOutcome(t *testing.T) {
	srv := testServer(t)
	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/reflect", ReflectRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleGetReport(t *testing.T) {
	srv := testServer(t)

	rec, _ := doRequest(t, srv, http.MethodGet, "/api/v1/reports/NVDA/2026-08-28", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any analysis", rec.Code)
	}

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/analyze",
		AnalyzeRequest{Company: "NVDA", Date: "2026-08-28"})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status = %d", rec.Code)
	}

	rec, resp := doRequest(t, srv, http.MethodGet, "/api/v1/reports/NVDA/2026-08-28", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sections map[string]string
	decodeData(t, resp, &sections)
	if sections[report.SectionFinalDecision] != "approved: buy" {
		t.Errorf("final_decision = %q", sections[report.SectionFinalDecision])
	}
	if !strings.Contains(sections[report.SectionMarketReport], "uptrend") {
		t.Errorf("market_report = %q", sections[report.SectionMarketReport])
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket hub tests
// ════════════════════════════════════════════════════════════════════

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	client := &WSClient{hub: hub, send: make(chan WSMessage, 4)}
	hub.Register(client)

	// Registration is handled asynchronously by the hub loop.
	deadline := time.After(time.Second)
	for hub.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	hub.Broadcast(WSMessage{Type: "analysis_started"})
	select {
	case msg := <-client.send:
		if msg.Type != "analysis_started" {
			t.Errorf("msg.Type = %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast never delivered")
	}

	hub.Unregister(client)
}
