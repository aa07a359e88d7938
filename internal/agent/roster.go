package agent

import (
	"github.com/seenimoa/tradeswarm/internal/agent/prompts"
	"github.com/seenimoa/tradeswarm/internal/dataflow"
	"github.com/seenimoa/tradeswarm/internal/llm"
	"github.com/seenimoa/tradeswarm/internal/memory"
)

// Memory collection names, one per learning agent.
const (
	BullMemory        = "bull_memory"
	BearMemory        = "bear_memory"
	TraderMemory      = "trader_memory"
	InvestJudgeMemory = "invest_judge_memory"
	RiskManagerMemory = "risk_manager_memory"
)

// ── Analyst Team ──

// NewMarketAnalyst creates the technical/price-action analyst with quote and
// price history tools bound.
func NewMarketAnalyst(provider llm.LLMProvider, data *dataflow.Service, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "market_analyst",
		Role:         "Market Analyst",
		SystemPrompt: prompts.MarketAnalyst,
		Provider:     provider,
		Tools:        quoteTools(data, true),
		ChatOptions:  opts,
	})
}

// NewSocialAnalyst creates the social sentiment analyst with news search bound.
func NewSocialAnalyst(provider llm.LLMProvider, data *dataflow.Service, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "social_analyst",
		Role:         "Social Media Analyst",
		SystemPrompt: prompts.SocialAnalyst,
		Provider:     provider,
		Tools:        stockNewsTools(data),
		ChatOptions:  opts,
	})
}

// NewNewsAnalyst creates the news and macro analyst with news tools bound.
func NewNewsAnalyst(provider llm.LLMProvider, data *dataflow.Service, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "news_analyst",
		Role:         "News Analyst",
		SystemPrompt: prompts.NewsAnalyst,
		Provider:     provider,
		Tools:        newsTools(data),
		ChatOptions:  opts,
	})
}

// NewFundamentalsAnalyst creates the fundamentals analyst with a quote
// snapshot tool bound.
func NewFundamentalsAnalyst(provider llm.LLMProvider, data *dataflow.Service, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "fundamentals_analyst",
		Role:         "Fundamentals Analyst",
		SystemPrompt: prompts.FundamentalsAnalyst,
		Provider:     provider,
		Tools:        quoteTools(data, false),
		ChatOptions:  opts,
	})
}

// ── Research Team ──

// NewBullResearcher creates the bull advocate with its memory tool bound.
func NewBullResearcher(provider llm.LLMProvider, store *memory.Store, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "bull_researcher",
		Role:         "Bull Researcher",
		SystemPrompt: prompts.BullResearcher,
		Provider:     provider,
		Tools:        memoryTools(store),
		ChatOptions:  opts,
	})
}

// NewBearResearcher creates the bear advocate with its memory tool bound.
func NewBearResearcher(provider llm.LLMProvider, store *memory.Store, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "bear_researcher",
		Role:         "Bear Researcher",
		SystemPrompt: prompts.BearResearcher,
		Provider:     provider,
		Tools:        memoryTools(store),
		ChatOptions:  opts,
	})
}

// NewResearchManager creates the investment judge that settles the
// bull/bear debate. Uses the deep model via opts.
func NewResearchManager(provider llm.LLMProvider, store *memory.Store, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "invest_judge",
		Role:         "Research Manager",
		SystemPrompt: prompts.ResearchManager,
		Provider:     provider,
		Tools:        memoryTools(store),
		ChatOptions:  opts,
	})
}

// ── Trading Team ──

// NewTrader creates the trading agent with its memory tool bound.
func NewTrader(provider llm.LLMProvider, store *memory.Store, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "trader",
		Role:         "Trader",
		SystemPrompt: prompts.Trader,
		Provider:     provider,
		Tools:        memoryTools(store),
		ChatOptions:  opts,
	})
}

// ── Risk Management Team ──

// NewRiskyDebator creates the aggressive risk analyst.
func NewRiskyDebator(provider llm.LLMProvider, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "risky_debator",
		Role:         "Risky Risk Analyst",
		SystemPrompt: prompts.RiskyDebator,
		Provider:     provider,
		ChatOptions:  opts,
	})
}

// NewSafeDebator creates the conservative risk analyst.
func NewSafeDebator(provider llm.LLMProvider, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "safe_debator",
		Role:         "Safe Risk Analyst",
		SystemPrompt: prompts.SafeDebator,
		Provider:     provider,
		ChatOptions:  opts,
	})
}

// NewNeutralDebator creates the balanced risk analyst.
func NewNeutralDebator(provider llm.LLMProvider, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "neutral_debator",
		Role:         "Neutral Risk Analyst",
		SystemPrompt: prompts.NeutralDebator,
		Provider:     provider,
		ChatOptions:  opts,
	})
}

// NewRiskManager creates the risk judge that settles the risk debate.
func NewRiskManager(provider llm.LLMProvider, store *memory.Store, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "risk_manager",
		Role:         "Risk Management Judge",
		SystemPrompt: prompts.RiskManager,
		Provider:     provider,
		Tools:        memoryTools(store),
		ChatOptions:  opts,
	})
}

// ── Reflection ──

// NewReflector creates the agent that reviews decisions against outcomes.
func NewReflector(provider llm.LLMProvider, opts *llm.ChatOptions) *BaseAgent {
	return NewBaseAgent(BaseAgentConfig{
		Name:         "reflector",
		Role:         "Reflection Analyst",
		SystemPrompt: prompts.Reflector,
		Provider:     provider,
		ChatOptions:  opts,
	})
}

// quoteTools binds the quote tool, and optionally price history, to an agent.
// A nil service yields an agent without market data access.
func quoteTools(data *dataflow.Service, withHistory bool) []llm.Tool {
	if data == nil || data.Quotes == nil {
		return nil
	}
	tools := []llm.Tool{dataflow.QuoteTool(data.Quotes)}
	if withHistory {
		tools = append(tools, dataflow.HistoryTool(data.Quotes))
	}
	return tools
}

// stockNewsTools binds per-ticker news search to an agent.
func stockNewsTools(data *dataflow.Service) []llm.Tool {
	if data == nil || data.News == nil {
		return nil
	}
	return []llm.Tool{dataflow.StockNewsTool(data.News)}
}

// newsTools binds both broad market news and per-ticker search to an agent.
func newsTools(data *dataflow.Service) []llm.Tool {
	if data == nil || data.News == nil {
		return nil
	}
	return []llm.Tool{
		dataflow.MarketNewsTool(data.News),
		dataflow.StockNewsTool(data.News),
	}
}

// memoryTools binds the retrieval and storage tools to one fixed collection.
// A nil store yields an agent without memory access.
func memoryTools(store *memory.Store) []llm.Tool {
	if store == nil {
		return nil
	}
	return []llm.Tool{
		memory.GetMemoriesTool(store, 2),
		memory.AddMemoriesTool(store),
	}
}
