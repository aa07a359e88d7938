package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/seenimoa/tradeswarm/internal/dataflow"
	"github.com/seenimoa/tradeswarm/internal/llm"
	"github.com/seenimoa/tradeswarm/internal/memory"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

// mockProvider returns scripted responses in order; the last response
// repeats once the script runs out.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	calls     int
	lastMsgs  []llm.Message
}

func (m *mockProvider) Name() string     { return "mock" }
func (m *mockProvider) Models() []string { return []string{"mock-model"} }

func (m *mockProvider) Ping(ctx context.Context) error { return m.err }

func (m *mockProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.ChatOptions) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMsgs = messages
	idx := m.calls
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func textResponse(content string) *llm.Response {
	return &llm.Response{
		Content:      content,
		FinishReason: llm.FinishStop,
		Usage:        llm.Usage{TotalTokens: 10},
		Model:        "mock-model",
		Provider:     "mock",
	}
}

func toolCallResponse(name string, args string) *llm.Response {
	return &llm.Response{
		ToolCalls: []llm.ToolCall{
			{ID: "call-1", Name: name, Arguments: json.RawMessage(args)},
		},
		FinishReason: llm.FinishToolCalls,
		Model:        "mock-model",
		Provider:     "mock",
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string { return "fake" }

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := float32(len(text)%5 + 1)
	return []float32{n, 1, n / 3}, nil
}

func testStore(t *testing.T, name string) *memory.Store {
	t.Helper()
	backend, err := memory.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	store, err := memory.Open(context.Background(), name, memory.Config{
		Backend: backend,
		Primary: fakeEmbedder{},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

// ════════════════════════════════════════════════════════════════════
// Memory tests
// ════════════════════════════════════════════════════════════════════

func TestMemoryAddAndMessages(t *testing.T) {
	mem := NewMemory(10)
	mem.Add(llm.UserMessage("hello"))
	mem.Add(llm.AssistantMessage("hi"))

	if mem.Size() != 2 {
		t.Fatalf("Size = %d, want 2", mem.Size())
	}
	msgs := mem.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Messages = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi" {
		t.Errorf("unexpected message contents: %v", msgs)
	}

	// Messages returns a copy; mutating it must not affect the memory.
	msgs[0].Content = "mutated"
	if mem.Messages()[0].Content != "hello" {
		t.Error("Messages returned a live reference to internal state")
	}
}

func TestMemoryNeedsSummarization(t *testing.T) {
	mem := NewMemory(2)
	mem.Add(llm.UserMessage("one"))
	mem.Add(llm.AssistantMessage("two"))
	if mem.NeedsSummarization() {
		t.Error("should not need summarization at max size")
	}
	mem.Add(llm.UserMessage("three"))
	if !mem.NeedsSummarization() {
		t.Error("should need summarization above max size")
	}
}

func TestMemoryClear(t *testing.T) {
	mem := NewMemory(10)
	mem.AddAll([]llm.Message{llm.UserMessage("a"), llm.AssistantMessage("b")})
	mem.Clear()
	if mem.Size() != 0 {
		t.Fatalf("Size after Clear = %d", mem.Size())
	}
}

// ════════════════════════════════════════════════════════════════════
// BaseAgent tests
// ════════════════════════════════════════════════════════════════════

func TestBaseAgentCreation(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}
	agent := NewBaseAgent(BaseAgentConfig{
		Name:         "test_agent",
		Role:         "Test Agent",
		SystemPrompt: "You are a test agent.",
		Provider:     provider,
	})

	if agent.Name() != "test_agent" {
		t.Errorf("Name = %q", agent.Name())
	}
	if agent.Role() != "Test Agent" {
		t.Errorf("Role = %q", agent.Role())
	}
	if agent.SystemPrompt() != "You are a test agent." {
		t.Errorf("SystemPrompt = %q", agent.SystemPrompt())
	}
	if len(agent.Tools()) != 0 {
		t.Errorf("Tools = %d, want 0", len(agent.Tools()))
	}
	if agent.Provider() == nil {
		t.Fatal("Provider should not be nil")
	}
	if agent.Memory() == nil {
		t.Fatal("Memory should not be nil")
	}
}

func TestBaseAgentProcess(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("the market looks bullish")}}
	agent := NewBaseAgent(BaseAgentConfig{
		Name:         "market_analyst",
		Role:         "Market Analyst",
		SystemPrompt: "Analyze the market.",
		Provider:     provider,
	})

	result, err := agent.Process(context.Background(), "Analyze NVDA")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Content != "the market looks bullish" {
		t.Errorf("Content = %q", result.Content)
	}
	if result.AgentName != "market_analyst" {
		t.Errorf("AgentName = %q", result.AgentName)
	}
	if result.Tokens != 10 {
		t.Errorf("Tokens = %d", result.Tokens)
	}

	// The provider must see system prompt first, then the task.
	if provider.lastMsgs[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q", provider.lastMsgs[0].Role)
	}
	if provider.lastMsgs[1].Content != "Analyze NVDA" {
		t.Errorf("task message = %q", provider.lastMsgs[1].Content)
	}

	// Conversation is stored without the system prompt.
	if agent.Memory().Size() != 1 {
		t.Errorf("Memory size = %d, want 1", agent.Memory().Size())
	}
}

func TestBaseAgentProcessWithHistory(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("refined view")}}
	agent := NewBaseAgent(BaseAgentConfig{
		Name:         "bull_researcher",
		Role:         "Bull Researcher",
		SystemPrompt: "Argue the bull case.",
		Provider:     provider,
	})

	history := []llm.Message{
		llm.UserMessage("earlier question"),
		llm.AssistantMessage("earlier answer"),
	}
	if _, err := agent.ProcessWithMessages(context.Background(), "refine your view", history); err != nil {
		t.Fatalf("ProcessWithMessages: %v", err)
	}

	// system + 2 history + task
	if len(provider.lastMsgs) != 4 {
		t.Fatalf("provider saw %d messages, want 4", len(provider.lastMsgs))
	}
	if provider.lastMsgs[1].Content != "earlier question" {
		t.Errorf("history not preserved: %q", provider.lastMsgs[1].Content)
	}
	if provider.lastMsgs[3].Content != "refine your view" {
		t.Errorf("task = %q", provider.lastMsgs[3].Content)
	}
}

func TestBaseAgentProcessError(t *testing.T) {
	wantErr := errors.New("provider down")
	provider := &mockProvider{err: wantErr}
	agent := NewBaseAgent(BaseAgentConfig{
		Name:         "test_agent",
		Role:         "Test Agent",
		SystemPrompt: "prompt",
		Provider:     provider,
	})

	result, err := agent.Process(context.Background(), "task")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if result == nil || result.Error == "" {
		t.Error("expected error recorded in the result")
	}
}

func TestBaseAgentToolLoop(t *testing.T) {
	var handlerCalls int
	tool := llm.Tool{
		Name:        "get_quote",
		Description: "Get a stock quote",
		Parameters: llm.ObjectSchema("quote request",
			map[string]*llm.JSONSchema{"ticker": llm.StringProp("ticker symbol")},
			"ticker"),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			handlerCalls++
			return `{"price": 123.45}`, nil
		},
	}

	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("get_quote", `{"ticker":"NVDA"}`),
		textResponse("NVDA trades at 123.45"),
	}}
	agent := NewBaseAgent(BaseAgentConfig{
		Name:         "test_agent",
		Role:         "Test Agent",
		SystemPrompt: "prompt",
		Provider:     provider,
		Tools:        []llm.Tool{tool},
	})

	result, err := agent.Process(context.Background(), "quote NVDA")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if handlerCalls != 1 {
		t.Errorf("handler called %d times", handlerCalls)
	}
	if result.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d", result.ToolCalls)
	}
	if result.Content != "NVDA trades at 123.45" {
		t.Errorf("Content = %q", result.Content)
	}

	// The tool result must have been fed back to the provider.
	var sawToolResult bool
	for _, msg := range provider.lastMsgs {
		if msg.Role == llm.RoleTool && strings.Contains(msg.Content, "123.45") {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Error("tool result never reached the provider")
	}
}

// ════════════════════════════════════════════════════════════════════
// Registry tests
// ════════════════════════════════════════════════════════════════════

func TestRegistry(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}
	reg := NewRegistry()

	reg.Register(NewMarketAnalyst(provider, nil, nil))
	reg.Register(NewTrader(provider, nil, nil))

	if reg.Count() != 2 {
		t.Fatalf("Count = %d", reg.Count())
	}
	if _, ok := reg.Get("market_analyst"); !ok {
		t.Error("market_analyst not found")
	}
	if _, ok := reg.Get("nobody"); ok {
		t.Error("found agent that was never registered")
	}
	if len(reg.List()) != 2 {
		t.Errorf("List = %d", len(reg.List()))
	}

	names := map[string]bool{}
	for _, n := range reg.Names() {
		names[n] = true
	}
	if !names["market_analyst"] || !names["trader"] {
		t.Errorf("Names = %v", reg.Names())
	}
}

// ════════════════════════════════════════════════════════════════════
// Roster constructor tests
// ════════════════════════════════════════════════════════════════════

func TestAnalystCreation(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}

	tests := []struct {
		agent *BaseAgent
		name  string
	}{
		{NewMarketAnalyst(provider, nil, nil), "market_analyst"},
		{NewSocialAnalyst(provider, nil, nil), "social_analyst"},
		{NewNewsAnalyst(provider, nil, nil), "news_analyst"},
		{NewFundamentalsAnalyst(provider, nil, nil), "fundamentals_analyst"},
		{NewRiskyDebator(provider, nil), "risky_debator"},
		{NewSafeDebator(provider, nil), "safe_debator"},
		{NewNeutralDebator(provider, nil), "neutral_debator"},
		{NewReflector(provider, nil), "reflector"},
	}
	for _, tt := range tests {
		if tt.agent.Name() != tt.name {
			t.Errorf("Name = %q, want %q", tt.agent.Name(), tt.name)
		}
		if tt.agent.SystemPrompt() == "" {
			t.Errorf("%s: empty system prompt", tt.name)
		}
		if len(tt.agent.Tools()) != 0 {
			t.Errorf("%s: no tools expected without a data service, got %d", tt.name, len(tt.agent.Tools()))
		}
	}
}

func TestAnalystDataTools(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}
	data := dataflow.NewService()

	tests := []struct {
		agent *BaseAgent
		tools []string
	}{
		{NewMarketAnalyst(provider, data, nil), []string{"get_stock_quote", "get_price_history"}},
		{NewSocialAnalyst(provider, data, nil), []string{"get_stock_news"}},
		{NewNewsAnalyst(provider, data, nil), []string{"get_market_news", "get_stock_news"}},
		{NewFundamentalsAnalyst(provider, data, nil), []string{"get_stock_quote"}},
	}
	for _, tt := range tests {
		toolNames := map[string]bool{}
		for _, tool := range tt.agent.Tools() {
			toolNames[tool.Name] = true
		}
		for _, want := range tt.tools {
			if !toolNames[want] {
				t.Errorf("%s: missing tool %s", tt.agent.Name(), want)
			}
		}
		if len(tt.agent.Tools()) != len(tt.tools) {
			t.Errorf("%s: got %d tools, want %d", tt.agent.Name(), len(tt.agent.Tools()), len(tt.tools))
		}
	}
}

func TestResearcherMemoryTools(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}
	store := testStore(t, BullMemory)

	tests := []struct {
		agent *BaseAgent
		name  string
	}{
		{NewBullResearcher(provider, store, nil), "bull_researcher"},
		{NewBearResearcher(provider, store, nil), "bear_researcher"},
		{NewResearchManager(provider, store, nil), "invest_judge"},
		{NewTrader(provider, store, nil), "trader"},
		{NewRiskManager(provider, store, nil), "risk_manager"},
	}
	for _, tt := range tests {
		if tt.agent.Name() != tt.name {
			t.Errorf("Name = %q, want %q", tt.agent.Name(), tt.name)
		}
		toolNames := map[string]bool{}
		for _, tool := range tt.agent.Tools() {
			toolNames[tool.Name] = true
		}
		for _, want := range []string{"get_memories", "add_memories"} {
			if !toolNames[want] {
				t.Errorf("%s: missing tool %s", tt.name, want)
			}
		}
	}
}

func TestNilStoreYieldsNoTools(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{textResponse("ok")}}
	agent := NewBullResearcher(provider, nil, nil)
	if len(agent.Tools()) != 0 {
		t.Errorf("Tools = %d, want 0 for nil store", len(agent.Tools()))
	}
}

func TestMemoryToolRetrievesStoredLesson(t *testing.T) {
	store := testStore(t, BullMemory)
	n, err := store.Append(context.Background(), []memory.Pair{
		{Situation: "rates rising, tech selling off", Recommendation: "trim growth positions"},
	})
	if err != nil || n != 1 {
		t.Fatalf("Append = %d, %v", n, err)
	}

	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("get_memories", `{"situation":"rates rising, tech selling off"}`),
		textResponse("per past lessons, trim growth"),
	}}
	agent := NewBullResearcher(provider, store, nil)

	result, err := agent.Process(context.Background(), "build the bull case")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d", result.ToolCalls)
	}

	var sawLesson bool
	for _, msg := range provider.lastMsgs {
		if msg.Role == llm.RoleTool && strings.Contains(msg.Content, "trim growth positions") {
			sawLesson = true
		}
	}
	if !sawLesson {
		t.Error("stored lesson never surfaced through the memory tool")
	}
}
