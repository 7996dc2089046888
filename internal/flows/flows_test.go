package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/stockpilot/paper-engine/internal/marketdata"
	"github.com/stockpilot/paper-engine/internal/model"
)

// stubGen records prompts and returns a canned response.
type stubGen struct {
	out     string
	err     error
	prompts []string
	schemas []*genai.Schema
}

func (s *stubGen) generate(_ context.Context, prompt string, schema *genai.Schema) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.schemas = append(s.schemas, schema)
	return s.out, s.err
}

type stubCandles struct {
	candles []model.Candle
	err     error
}

func (s *stubCandles) GetCandles(context.Context, string, time.Time, time.Time) ([]model.Candle, error) {
	return s.candles, s.err
}

func newFlowClient(gen generator, market CandleSource) *Client {
	return &Client{
		gen:     gen,
		market:  market,
		timeout: time.Second,
		logger:  slog.Default(),
	}
}

func overloadErr() error {
	return genai.APIError{Code: 429, Message: "quota exceeded"}
}

func TestIsOverloaded(t *testing.T) {
	assert.False(t, isOverloaded(nil))
	assert.True(t, isOverloaded(genai.APIError{Code: 429}))
	assert.True(t, isOverloaded(genai.APIError{Code: 503}))
	assert.False(t, isOverloaded(genai.APIError{Code: 400}))
	assert.True(t, isOverloaded(errors.New("rpc error 503 service unavailable")))
	assert.True(t, isOverloaded(errors.New("the model is overloaded")))
	assert.False(t, isOverloaded(errors.New("bad request")))
}

func TestHistoricalData_Success(t *testing.T) {
	gen := &stubGen{out: `{"sentiment":"positive","explanation":"earnings season"}`}
	market := &stubCandles{candles: []model.Candle{{Volume: 100}, {Volume: 200}}}
	c := newFlowClient(gen, market)

	out, err := c.HistoricalData(context.Background(), HistoricalDataInput{
		Ticker: "AAPL", StartDate: "2024-01-01", EndDate: "2024-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "positive", out.Sentiment)
	assert.Equal(t, "earnings season", out.Explanation)
	assert.Len(t, out.Data, 2)
	assert.Empty(t, out.DataError)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "AAPL")
	assert.Contains(t, gen.prompts[0], "2024-01-01")
	assert.NotNil(t, gen.schemas[0], "sentiment selection asks for schema-validated JSON")
}

func TestHistoricalData_OverloadStillFetchesData(t *testing.T) {
	gen := &stubGen{err: overloadErr()}
	market := &stubCandles{candles: []model.Candle{{Volume: 100}}}
	c := newFlowClient(gen, market)

	out, err := c.HistoricalData(context.Background(), HistoricalDataInput{
		Ticker: "AAPL", StartDate: "2024-01-01", EndDate: "2024-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Unavailable", out.Sentiment)
	assert.Equal(t, overloadExplanation, out.Explanation)
	assert.Len(t, out.Data, 1, "candle fetch proceeds even when the model is overloaded")
}

func TestHistoricalData_NoData(t *testing.T) {
	gen := &stubGen{out: `{"sentiment":"neutral","explanation":"x"}`}
	market := &stubCandles{err: marketdata.ErrNoData}
	c := newFlowClient(gen, market)

	out, err := c.HistoricalData(context.Background(), HistoricalDataInput{
		Ticker: "ZZZZ", StartDate: "2024-01-01", EndDate: "2024-02-01",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Data)
	assert.Equal(t,
		"No historical data found for ticker ZZZZ in the specified date range.",
		out.DataError)
}

func TestHistoricalData_ProviderFailureBecomesPayload(t *testing.T) {
	gen := &stubGen{out: `{"sentiment":"neutral","explanation":"x"}`}
	market := &stubCandles{err: marketdata.ErrRateLimited}
	c := newFlowClient(gen, market)

	out, err := c.HistoricalData(context.Background(), HistoricalDataInput{
		Ticker: "AAPL", StartDate: "2024-01-01", EndDate: "2024-02-01",
	})
	require.NoError(t, err, "provider failures are reported in the payload, not raised")
	assert.True(t, strings.HasPrefix(out.DataError, "An error occurred while fetching historical data:"),
		"got %q", out.DataError)
}

func TestHistoricalData_InvalidDates(t *testing.T) {
	gen := &stubGen{out: `{"sentiment":"neutral","explanation":"x"}`}
	c := newFlowClient(gen, &stubCandles{})

	_, err := c.HistoricalData(context.Background(), HistoricalDataInput{
		Ticker: "AAPL", StartDate: "01/01/2024", EndDate: "2024-02-01",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_date")
}

func TestSentimentDecision(t *testing.T) {
	gen := &stubGen{out: `{"trade_decision":"buy","explanation":"strong headlines"}`}
	c := newFlowClient(gen, nil)

	out, err := c.SentimentDecision(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "buy", out.TradeDecision)
	assert.Equal(t, "strong headlines", out.Explanation)
	assert.Contains(t, gen.prompts[0], "Stock Symbol: TSLA")
}

func TestSentimentDecision_Overload(t *testing.T) {
	c := newFlowClient(&stubGen{err: overloadErr()}, nil)

	out, err := c.SentimentDecision(context.Background(), "TSLA")
	require.NoError(t, err, "overload is a sentinel response, never an error")
	assert.Equal(t, "hold", out.TradeDecision)
	assert.Equal(t, overloadExplanation, out.Explanation)
}

func TestNewsSentiment_ClampsScores(t *testing.T) {
	gen := &stubGen{out: `{"sentiment_score":5,"correlation":-3,"explanation":"x"}`}
	c := newFlowClient(gen, nil)

	out, err := c.NewsSentiment(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.SentimentScore)
	assert.Equal(t, -1.0, out.Correlation)
}

func TestNewsSentiment_Overload(t *testing.T) {
	c := newFlowClient(&stubGen{err: overloadErr()}, nil)

	out, err := c.NewsSentiment(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Zero(t, out.SentimentScore)
	assert.Zero(t, out.Correlation)
	assert.Equal(t, overloadExplanation, out.Explanation)
}

func TestBacktest_UnprofitableAsksForSuggestions(t *testing.T) {
	gen := &stubGen{out: "Add a moving-average filter."}
	c := newFlowClient(gen, nil)

	out, err := c.Backtest(context.Background(), BacktestInput{
		Strategy: "buy low sell high", HistoricalData: "candles...",
	})
	require.NoError(t, err)
	assert.Contains(t, out.BacktestResults, "unprofitable")
	assert.Equal(t, "Add a moving-average filter.", out.SuggestedFeatures)

	require.Len(t, gen.schemas, 1)
	assert.Nil(t, gen.schemas[0], "suggestions are plain text, not schema JSON")
}

func TestBacktest_Overload(t *testing.T) {
	c := newFlowClient(&stubGen{err: overloadErr()}, nil)

	out, err := c.Backtest(context.Background(), BacktestInput{Strategy: "s", HistoricalData: "d"})
	require.NoError(t, err)
	assert.Equal(t, overloadBacktest, out.BacktestResults)
	assert.Equal(t, overloadFeatures, out.SuggestedFeatures)
}

func TestBacktest_EmptySuggestions(t *testing.T) {
	c := newFlowClient(&stubGen{out: ""}, nil)

	out, err := c.Backtest(context.Background(), BacktestInput{Strategy: "s", HistoricalData: "d"})
	require.NoError(t, err)
	assert.Equal(t, "No features suggested.", out.SuggestedFeatures)
}

func TestSignal(t *testing.T) {
	gen := &stubGen{out: `{"signal":"sell","explanation":"momentum fading"}`}
	c := newFlowClient(gen, nil)

	out, err := c.Signal(context.Background(), SignalInput{
		Ticker: "NVDA", Strategy: "momentum", HistoricalData: "bars", SentimentScore: -0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "sell", out.Signal)
	assert.Equal(t, "momentum fading", out.Explanation)

	assert.Contains(t, gen.prompts[0], "Ticker Symbol: NVDA")
	assert.Contains(t, gen.prompts[0], "Sentiment Score: -0.5")
}

func TestSignal_Overload(t *testing.T) {
	c := newFlowClient(&stubGen{err: overloadErr()}, nil)

	out, err := c.Signal(context.Background(), SignalInput{Ticker: "NVDA"})
	require.NoError(t, err)
	assert.Equal(t, "Unavailable", out.Signal)
	assert.Equal(t, overloadExplanation, out.Explanation)
}

func TestFlows_ModelErrorPropagates(t *testing.T) {
	c := newFlowClient(&stubGen{err: errors.New("bad request")}, nil)

	_, err := c.SentimentDecision(context.Background(), "AAPL")
	require.Error(t, err)

	_, err = c.Signal(context.Background(), SignalInput{Ticker: "AAPL"})
	require.Error(t, err)
}
