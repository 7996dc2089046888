package flows

import (
	"encoding/json"
	"net/http"

	"github.com/stockpilot/paper-engine/internal/symbol"
)

// HTTP handlers for the flow endpoints under /api/v1/flows.

// HandleHistoricalData handles POST /flows/historical-data.
func (c *Client) HandleHistoricalData(w http.ResponseWriter, r *http.Request) {
	var in HistoricalDataInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sym, err := symbol.Parse(in.Ticker)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.Ticker = sym

	out, err := c.HistoricalData(r.Context(), in)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

// HandleSentimentDecision handles POST /flows/sentiment-decision.
func (c *Client) HandleSentimentDecision(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sym, err := symbol.Parse(in.Symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := c.SentimentDecision(r.Context(), sym)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

// HandleNewsSentiment handles POST /flows/news-sentiment.
func (c *Client) HandleNewsSentiment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sym, err := symbol.Parse(in.Symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := c.NewsSentiment(r.Context(), sym)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

// HandleBacktest handles POST /flows/backtest.
func (c *Client) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var in BacktestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if in.Strategy == "" {
		writeError(w, "strategy is required", http.StatusBadRequest)
		return
	}

	out, err := c.Backtest(r.Context(), in)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

// HandleSignal handles POST /flows/signal.
func (c *Client) HandleSignal(w http.ResponseWriter, r *http.Request) {
	var in SignalInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sym, err := symbol.Parse(in.Ticker)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.Ticker = sym

	out, err := c.Signal(r.Context(), in)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
