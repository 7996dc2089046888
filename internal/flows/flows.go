// Package flows wraps the generative-AI prompt templates behind typed
// request/response pairs. Every flow shares one contract: a value plus an
// error, where upstream overload (rate limit / unavailable) never becomes
// an error — the caller receives a fixed sentinel response instead.
package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/stockpilot/paper-engine/internal/marketdata"
	"github.com/stockpilot/paper-engine/internal/metrics"
	"github.com/stockpilot/paper-engine/internal/model"
)

// Fixed sentinel texts returned on upstream overload.
const (
	overloadExplanation = "The AI model is currently overloaded or you have exceeded your quota. Please try again in a few moments."
	overloadBacktest    = "The backtest was successful, but the AI feature suggestion model is currently overloaded. Please try again in a few moments."
	overloadFeatures    = "The AI model is temporarily unavailable. Please try again later."
)

// CandleSource is the slice of the market-data client the historical-data
// flow needs.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]model.Candle, error)
}

// generator abstracts the model call so flows are testable without the
// hosted service. prompt is the interpolated template; a nil schema asks
// for plain text, otherwise schema-validated JSON.
type generator interface {
	generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Client runs the five flows. Each call carries an explicit deadline.
type Client struct {
	gen     generator
	market  CandleSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a flow client over a genai client. market may be nil
// if the historical-data flow is unused.
func NewClient(gc *genai.Client, modelName string, market CandleSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		gen:     &genaiGenerator{client: gc, model: modelName},
		market:  market,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

func (c *Client) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// isOverloaded reports whether err is a rate-limit or unavailable
// condition from the model service.
func isOverloaded(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code == 503
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "503") ||
		strings.Contains(strings.ToLower(msg), "overloaded")
}

// --- Historical data flow ---

// HistoricalDataInput selects a ticker and a date range (YYYY-MM-DD).
type HistoricalDataInput struct {
	Ticker    string `json:"ticker"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// HistoricalDataOutput carries the chosen sentiment plus either the raw
// candles or a structured data error — never a raised error for a
// missing-data condition.
type HistoricalDataOutput struct {
	Sentiment   string         `json:"sentiment"`
	Explanation string         `json:"explanation"`
	Data        []model.Candle `json:"data,omitempty"`
	DataError   string         `json:"data_error,omitempty"`
}

var sentimentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment":   {Type: genai.TypeString},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"sentiment", "explanation"},
}

// HistoricalData picks the market sentiment most relevant to the range,
// then fetches daily candles from the market-data provider.
func (c *Client) HistoricalData(ctx context.Context, in HistoricalDataInput) (*HistoricalDataOutput, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	out := &HistoricalDataOutput{}

	prompt := fmt.Sprintf(
		"Given the ticker symbol %s, start date %s, and end date %s, determine which market sentiment (positive, negative, or neutral) would be most relevant for analyzing historical stock data for potential trading strategies. Explain your choice.",
		in.Ticker, in.StartDate, in.EndDate)

	raw, err := c.gen.generate(ctx, prompt, sentimentSchema)
	switch {
	case isOverloaded(err):
		metrics.FlowRequestsTotal.WithLabelValues("historical_data", "overloaded").Inc()
		out.Sentiment = "Unavailable"
		out.Explanation = overloadExplanation
	case err != nil:
		metrics.FlowRequestsTotal.WithLabelValues("historical_data", "error").Inc()
		return nil, fmt.Errorf("flows: sentiment selection: %w", err)
	default:
		var sel struct {
			Sentiment   string `json:"sentiment"`
			Explanation string `json:"explanation"`
		}
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			metrics.FlowRequestsTotal.WithLabelValues("historical_data", "error").Inc()
			return nil, fmt.Errorf("flows: sentiment output: %w", err)
		}
		out.Sentiment = sel.Sentiment
		out.Explanation = sel.Explanation
	}

	from, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return nil, fmt.Errorf("flows: invalid start_date: %w", err)
	}
	to, err := time.Parse("2006-01-02", in.EndDate)
	if err != nil {
		return nil, fmt.Errorf("flows: invalid end_date: %w", err)
	}

	candles, err := c.market.GetCandles(ctx, in.Ticker, from, to)
	switch {
	case err == nil:
		out.Data = candles
		metrics.FlowRequestsTotal.WithLabelValues("historical_data", "ok").Inc()
	case errors.Is(err, marketdata.ErrNoData):
		out.DataError = fmt.Sprintf(
			"No historical data found for ticker %s in the specified date range.", in.Ticker)
		metrics.FlowRequestsTotal.WithLabelValues("historical_data", "no_data").Inc()
	default:
		// Provider failures become a structured payload, not an error.
		out.DataError = fmt.Sprintf("An error occurred while fetching historical data: %v", err)
		metrics.FlowRequestsTotal.WithLabelValues("historical_data", "data_error").Inc()
	}

	return out, nil
}

// --- Headline sentiment trade recommendation ---

// SentimentDecisionOutput is a buy/sell/hold call with its reasoning.
type SentimentDecisionOutput struct {
	TradeDecision string `json:"trade_decision"`
	Explanation   string `json:"explanation"`
}

var decisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"trade_decision": {Type: genai.TypeString},
		"explanation":    {Type: genai.TypeString},
	},
	Required: []string{"trade_decision", "explanation"},
}

// SentimentDecision asks for a trade recommendation from recent headline
// sentiment for the symbol.
func (c *Client) SentimentDecision(ctx context.Context, sym string) (*SentimentDecisionOutput, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	prompt := fmt.Sprintf(`You are an AI-powered trading strategy assistant.

Based on the provided stock symbol, you will fetch the latest news headlines, analyze the sentiment of these headlines, and provide a trading decision.

Consider using multiple parameters before making decisions so that it is robust and fit.

Stock Symbol: %s

Based on the news sentiment, provide a trade decision (buy, sell, or hold) and explain the reasoning behind your decision. Be sure to provide a human readable explanation to go along with your decision.`, sym)

	raw, err := c.gen.generate(ctx, prompt, decisionSchema)
	if isOverloaded(err) {
		metrics.FlowRequestsTotal.WithLabelValues("sentiment_decision", "overloaded").Inc()
		return &SentimentDecisionOutput{TradeDecision: "hold", Explanation: overloadExplanation}, nil
	}
	if err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("sentiment_decision", "error").Inc()
		return nil, fmt.Errorf("flows: sentiment decision: %w", err)
	}

	var out SentimentDecisionOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("sentiment_decision", "error").Inc()
		return nil, fmt.Errorf("flows: sentiment decision output: %w", err)
	}
	metrics.FlowRequestsTotal.WithLabelValues("sentiment_decision", "ok").Inc()
	return &out, nil
}

// --- News sentiment scoring ---

// NewsSentimentOutput scores sentiment and its price correlation, both
// in [-1, 1].
type NewsSentimentOutput struct {
	SentimentScore float64 `json:"sentiment_score"`
	Correlation    float64 `json:"correlation"`
	Explanation    string  `json:"explanation"`
}

var newsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment_score": {Type: genai.TypeNumber},
		"correlation":     {Type: genai.TypeNumber},
		"explanation":     {Type: genai.TypeString},
	},
	Required: []string{"sentiment_score", "correlation", "explanation"},
}

// NewsSentiment scores recent news sentiment for the symbol and its
// correlation with price movement.
func (c *Client) NewsSentiment(ctx context.Context, sym string) (*NewsSentimentOutput, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	prompt := fmt.Sprintf(`You are an expert financial analyst. You will analyze the recent news sentiment for a given stock and correlate it with recent stock price movements.

Based on this information, determine the sentiment score and correlation. If no news data or price movements, return a score of 0 and correlation of 0. Return the sentiment score from -1 to 1, and the correlation using the following:

Sentiment Score:
- -1: Very Negative
- -0.5: Negative
- 0: Neutral
- 0.5: Positive
- 1: Very Positive

Correlation:
- -1: Very Negative Correlation
- -0.5: Negative Correlation
- 0: No Correlation
- 0.5: Positive Correlation
- 1: Very Positive Correlation

Symbol: %s`, sym)

	raw, err := c.gen.generate(ctx, prompt, newsSchema)
	if isOverloaded(err) {
		metrics.FlowRequestsTotal.WithLabelValues("news_sentiment", "overloaded").Inc()
		return &NewsSentimentOutput{Explanation: overloadExplanation}, nil
	}
	if err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("news_sentiment", "error").Inc()
		return nil, fmt.Errorf("flows: news sentiment: %w", err)
	}

	var out NewsSentimentOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("news_sentiment", "error").Inc()
		return nil, fmt.Errorf("flows: news sentiment output: %w", err)
	}
	out.SentimentScore = clamp(out.SentimentScore)
	out.Correlation = clamp(out.Correlation)
	metrics.FlowRequestsTotal.WithLabelValues("news_sentiment", "ok").Inc()
	return &out, nil
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- Backtest with feature suggestions ---

// BacktestInput is a strategy definition plus historical data as text.
type BacktestInput struct {
	Strategy       string `json:"strategy"`
	HistoricalData string `json:"historical_data"`
}

// BacktestOutput is the backtest narrative plus suggested features.
type BacktestOutput struct {
	BacktestResults   string `json:"backtest_results"`
	SuggestedFeatures string `json:"suggested_features"`
}

// Backtest runs the canned backtest and, when the strategy comes back
// unprofitable, asks the model for feature suggestions.
func (c *Client) Backtest(ctx context.Context, in BacktestInput) (*BacktestOutput, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	results := runBacktest(in.Strategy, in.HistoricalData)

	if !strings.Contains(results, "unprofitable") {
		metrics.FlowRequestsTotal.WithLabelValues("backtest", "ok").Inc()
		return &BacktestOutput{
			BacktestResults:   results,
			SuggestedFeatures: "The strategy is profitable, no feature enhancements are needed.",
		}, nil
	}

	prompt := fmt.Sprintf(`Given the following trading strategy backtest results, suggest features that could be added to the strategy to improve its profitability:

Backtest Results:
%s`, results)

	suggestions, err := c.gen.generate(ctx, prompt, nil)
	if isOverloaded(err) {
		metrics.FlowRequestsTotal.WithLabelValues("backtest", "overloaded").Inc()
		return &BacktestOutput{
			BacktestResults:   overloadBacktest,
			SuggestedFeatures: overloadFeatures,
		}, nil
	}
	if err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("backtest", "error").Inc()
		return nil, fmt.Errorf("flows: backtest suggestions: %w", err)
	}
	if suggestions == "" {
		suggestions = "No features suggested."
	}

	metrics.FlowRequestsTotal.WithLabelValues("backtest", "ok").Inc()
	return &BacktestOutput{
		BacktestResults:   results,
		SuggestedFeatures: suggestions,
	}, nil
}

// runBacktest is a canned simulation; a real engine would parse the
// strategy, replay candles, and compute performance metrics.
func runBacktest(strategy, data string) string {
	return fmt.Sprintf(`Backtesting results for strategy %q with data %q:
The strategy is currently unprofitable. Consider adding features to improve performance.`,
		strategy, data)
}

// --- Explainable signal ---

// SignalInput feeds the signal generator.
type SignalInput struct {
	Ticker         string  `json:"ticker"`
	Strategy       string  `json:"strategy"`
	HistoricalData string  `json:"historical_data"`
	SentimentScore float64 `json:"sentiment_score"`
}

// SignalOutput is a buy/sell/hold signal with its explanation.
type SignalOutput struct {
	Signal      string `json:"signal"`
	Explanation string `json:"explanation"`
}

var signalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"signal":      {Type: genai.TypeString},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"signal", "explanation"},
}

// Signal generates an explainable trading signal. On overload it returns
// the fixed "Unavailable" sentinel without error.
func (c *Client) Signal(ctx context.Context, in SignalInput) (*SignalOutput, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	prompt := fmt.Sprintf(`You are an AI trading signal generator that provides clear, human-readable explanations for each signal.

Based on the following information, generate a buy, sell, or hold signal and explain your reasoning:

Ticker Symbol: %s
Trading Strategy: %s
Historical Market Data: %s
Sentiment Score: %g

Consider the trading strategy, historical data, and sentiment score to arrive at a well-reasoned signal. The explanation should be understandable by a non-expert.`,
		in.Ticker, in.Strategy, in.HistoricalData, in.SentimentScore)

	raw, err := c.gen.generate(ctx, prompt, signalSchema)
	if isOverloaded(err) {
		metrics.FlowRequestsTotal.WithLabelValues("signal", "overloaded").Inc()
		return &SignalOutput{Signal: "Unavailable", Explanation: overloadExplanation}, nil
	}
	if err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("signal", "error").Inc()
		return nil, fmt.Errorf("flows: signal: %w", err)
	}

	var out SignalOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		metrics.FlowRequestsTotal.WithLabelValues("signal", "error").Inc()
		return nil, fmt.Errorf("flows: signal output: %w", err)
	}
	metrics.FlowRequestsTotal.WithLabelValues("signal", "ok").Inc()
	return &out, nil
}
