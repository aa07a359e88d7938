package dataflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seenimoa/tradeswarm/internal/llm"
)

// QuoteTool exposes real-time quote lookup as an LLM tool.
func QuoteTool(y *Yahoo) llm.Tool {
	return llm.Tool{
		Name:        "get_stock_quote",
		Description: "Get the latest price, volume, and 52-week range for a stock ticker.",
		Parameters: llm.ObjectSchema("Quote request",
			map[string]*llm.JSONSchema{
				"ticker": llm.StringProp("Stock ticker symbol, e.g. NVDA"),
			},
			"ticker",
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Ticker string `json:"ticker"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("dataflow: bad get_stock_quote args: %w", err)
			}
			quote, err := y.Quote(ctx, in.Ticker)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(quote)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

// HistoryTool exposes daily OHLCV history as an LLM tool.
func HistoryTool(y *Yahoo) llm.Tool {
	return llm.Tool{
		Name:        "get_price_history",
		Description: "Get daily OHLCV candles for a stock over a range like 1mo, 3mo, or 1y.",
		Parameters: llm.ObjectSchema("History request",
			map[string]*llm.JSONSchema{
				"ticker": llm.StringProp("Stock ticker symbol, e.g. NVDA"),
				"range":  llm.StringProp("Lookback range: 1mo, 3mo, 6mo, 1y (default 3mo)"),
			},
			"ticker",
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Ticker string `json:"ticker"`
				Range  string `json:"range"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("dataflow: bad get_price_history args: %w", err)
			}
			candles, err := y.History(ctx, in.Ticker, in.Range)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(candles)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

// StockNewsTool exposes per-ticker news search as an LLM tool.
func StockNewsTool(n *News) llm.Tool {
	return llm.Tool{
		Name:        "get_stock_news",
		Description: "Get recent news articles mentioning a company or ticker.",
		Parameters: llm.ObjectSchema("Stock news request",
			map[string]*llm.JSONSchema{
				"query": llm.StringProp("Ticker or company name to search for"),
				"limit": llm.IntProp("Maximum number of articles to return"),
			},
			"query",
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("dataflow: bad get_stock_news args: %w", err)
			}
			if in.Limit <= 0 {
				in.Limit = 10
			}
			articles, err := n.StockNews(ctx, in.Query, in.Limit)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(articles)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

// MarketNewsTool exposes broad market news as an LLM tool.
func MarketNewsTool(n *News) llm.Tool {
	return llm.Tool{
		Name:        "get_market_news",
		Description: "Get the latest broad market and macro news headlines.",
		Parameters: llm.ObjectSchema("Market news request",
			map[string]*llm.JSONSchema{
				"limit": llm.IntProp("Maximum number of articles to return"),
			},
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Limit int `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("dataflow: bad get_market_news args: %w", err)
			}
			if in.Limit <= 0 {
				in.Limit = 15
			}
			articles, err := n.MarketNews(ctx, in.Limit)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(articles)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
