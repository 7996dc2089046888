package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
	"github.com/stockpilot/paper-engine/internal/store"
	"github.com/stockpilot/paper-engine/internal/symbol"
)

// --- Request types ---

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
	Type   string `json:"type"` // "buy" or "sell"
}

// FundsRequest is the JSON body for POST /deposit and POST /withdraw.
type FundsRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// --- HTTP Handlers ---

// HandleTrade handles POST /api/v1/trade.
func (s *Service) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.Trade(r.Context(), req.UserID, Order{
		Symbol: req.Symbol,
		Shares: req.Shares,
		Type:   req.Type,
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleDeposit handles POST /api/v1/deposit.
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	account, err := s.Deposit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleWithdraw handles POST /api/v1/withdraw.
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	account, err := s.Withdraw(r.Context(), req.UserID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandlePortfolio handles GET /api/v1/accounts/{userID}.
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolio, err := s.Portfolio(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// HandlePositions handles GET /api/v1/accounts/{userID}/positions.
func (s *Service) HandlePositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	positions, err := s.store.ListPositions(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// HandleTransactions handles GET /api/v1/accounts/{userID}/transactions.
// Supports ?limit=N; records come back newest first.
func (s *Service) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.Transactions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleQuote handles GET /api/v1/quotes/{symbol}.
func (s *Service) HandleQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Parse(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.quotes.Lookup(sym))
}

// statusFor maps ledger errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoAccount):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares):
		return http.StatusConflict
	case errors.Is(err, ErrRetriesExhausted), errors.Is(err, store.ErrConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, symbol.ErrInvalidSymbol):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
