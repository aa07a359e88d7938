package dataflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// yahooBaseURL is the Yahoo Finance v8 chart API endpoint. Overridable for tests.
const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches quotes and price history from the Yahoo Finance chart API.
type Yahoo struct {
	baseURL string
	cache   *Cache
	limiter *RateLimiter
}

// NewYahoo creates a Yahoo Finance data source.
func NewYahoo() *Yahoo {
	return NewYahooWithBaseURL(yahooBaseURL)
}

// NewYahooWithBaseURL creates a Yahoo Finance data source against a custom
// endpoint. Used by tests.
func NewYahooWithBaseURL(baseURL string) *Yahoo {
	return &Yahoo{
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   NewCache(5 * time.Minute),
		limiter: NewRateLimiter(5, time.Second), // 5 req/s
	}
}

// Name returns the data source name.
func (y *Yahoo) Name() string { return "Yahoo Finance" }

// --- Chart API response types ---

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol               string  `json:"symbol"`
	LongName             string  `json:"longName"`
	Currency             string  `json:"currency"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	RegularMarketVolume  int64   `json:"regularMarketVolume"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
	FiftyTwoWeekHigh     float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow      float64 `json:"fiftyTwoWeekLow"`
	RegularMarketTime    int64   `json:"regularMarketTime"`
}

type yfIndicators struct {
	Quote []yfQuoteBars `json:"quote"`
}

type yfQuoteBars struct {
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []int64   `json:"volume"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Quote returns a near-real-time quote for the ticker.
func (y *Yahoo) Quote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	cacheKey := "quote:" + ticker
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(*Quote), nil
	}

	result, err := y.fetchChart(ctx, ticker, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := result.Meta
	q := &Quote{
		Symbol:        meta.Symbol,
		Name:          meta.LongName,
		Currency:      meta.Currency,
		Price:         meta.RegularMarketPrice,
		PreviousClose: meta.ChartPreviousClose,
		DayHigh:       meta.RegularMarketDayHigh,
		DayLow:        meta.RegularMarketDayLow,
		Volume:        meta.RegularMarketVolume,
		YearHigh:      meta.FiftyTwoWeekHigh,
		YearLow:       meta.FiftyTwoWeekLow,
	}
	if meta.RegularMarketTime > 0 {
		q.AsOf = time.Unix(meta.RegularMarketTime, 0).UTC().Format(time.RFC3339)
	}

	y.cache.Set(cacheKey, q)
	return q, nil
}

// History returns daily OHLCV candles for the given range (e.g. "1mo", "3mo", "1y").
func (y *Yahoo) History(ctx context.Context, ticker, rng string) ([]Candle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if rng == "" {
		rng = "3mo"
	}
	cacheKey := fmt.Sprintf("history:%s:%s", ticker, rng)
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.([]Candle), nil
	}

	result, err := y.fetchChart(ctx, ticker, rng, "1d")
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("dataflow: no price data for %s", ticker)
	}

	bars := result.Indicators.Quote[0]
	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.Close) {
			break
		}
		c := Candle{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: bars.Close[i],
		}
		if i < len(bars.Open) {
			c.Open = bars.Open[i]
		}
		if i < len(bars.High) {
			c.High = bars.High[i]
		}
		if i < len(bars.Low) {
			c.Low = bars.Low[i]
		}
		if i < len(bars.Volume) {
			c.Volume = bars.Volume[i]
		}
		candles = append(candles, c)
	}

	y.cache.Set(cacheKey, candles)
	return candles, nil
}

// fetchChart calls the v8 chart API and returns the first result.
func (y *Yahoo) fetchChart(ctx context.Context, ticker, rng, interval string) (*yfChartResult, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s", y.baseURL, ticker, rng, interval)
	body, status, err := doGet(ctx, url, nil)
	if err != nil {
		if status == 404 {
			return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
		}
		return nil, err
	}
	defer body.Close()

	var resp yfChartResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("dataflow: decode chart response: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("dataflow: yahoo error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}
	return &resp.Chart.Result[0], nil
}
