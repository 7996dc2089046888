// Package marketdata provides a REST client for daily candle data from
// the Finnhub stock API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

var (
	// ErrNoData means the provider has no candles for the symbol/range.
	// Flow callers translate this into a structured payload rather than
	// propagating it.
	ErrNoData = errors.New("marketdata: no data for symbol in range")

	// ErrRateLimited means the provider rejected the call for quota.
	ErrRateLimited = errors.New("marketdata: rate limited")
)

// Client provides access to the Finnhub REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a new market-data client authenticated by apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// candleResponse is Finnhub's parallel-array candle payload.
type candleResponse struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Status    string    `json:"s"` // "ok" or "no_data"
	Timestamp []int64   `json:"t"`
	Volume    []float64 `json:"v"`
}

// GetCandles fetches daily candles for symbol over [from, to].
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", "D")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/stock/candle?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: http %d", resp.StatusCode)
	}

	var raw candleResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("marketdata: decode: %w", err)
	}

	if raw.Status == "no_data" {
		return nil, ErrNoData
	}
	if raw.Status != "ok" {
		return nil, fmt.Errorf("marketdata: unexpected status %q", raw.Status)
	}

	n := len(raw.Timestamp)
	if len(raw.Open) != n || len(raw.High) != n || len(raw.Low) != n ||
		len(raw.Close) != n || len(raw.Volume) != n {
		return nil, errors.New("marketdata: mismatched candle arrays")
	}

	candles := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, model.Candle{
			Time:   time.Unix(raw.Timestamp[i], 0).UTC(),
			Open:   decimal.NewFromFloat(raw.Open[i]),
			High:   decimal.NewFromFloat(raw.High[i]),
			Low:    decimal.NewFromFloat(raw.Low[i]),
			Close:  decimal.NewFromFloat(raw.Close[i]),
			Volume: int64(raw.Volume[i]),
		})
	}

	c.logger.Debug("fetched candles", "symbol", symbol, "count", len(candles))
	return candles, nil
}
