// Package ledger applies trades, deposits, and withdrawals to an account
// atomically, and exposes the HTTP surface for account state.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/metrics"
	"github.com/stockpilot/paper-engine/internal/model"
	"github.com/stockpilot/paper-engine/internal/quote"
	"github.com/stockpilot/paper-engine/internal/store"
	"github.com/stockpilot/paper-engine/internal/symbol"
)

// RetryPolicy bounds optimistic-concurrency retries on store conflicts.
// Retry is explicit here rather than hidden in the store client.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries a conflicted transaction up to 5 times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 25 * time.Millisecond}
}

// Service executes ledger operations against a store. The store's
// UpdateAccount primitive provides atomicity; the service owns quote
// resolution, the buy/sell branches, and the retry policy.
type Service struct {
	store  store.Store
	quotes quote.Source
	retry  RetryPolicy
	hub    *Hub // optional WebSocket hub for post-commit broadcasts
}

// NewService creates a new ledger service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, quotes quote.Source, retry RetryPolicy, hub *Hub) *Service {
	return &Service{
		store:  st,
		quotes: quotes,
		retry:  retry,
		hub:    hub,
	}
}

// Order is a buy or sell request for one symbol.
type Order struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
	Type   string `json:"type"` // "buy" or "sell"
}

// TradeResult is the post-transaction state returned to the caller.
type TradeResult struct {
	Record      model.TransactionRecord `json:"record"`
	CashBalance decimal.Decimal         `json:"cash_balance"`
	Position    *model.Position         `json:"position,omitempty"` // nil when the sell closed it
}

// Trade applies one buy or sell order to the user's account: exactly one
// balance mutation, at most one position mutation, exactly one record
// append, all-or-nothing. The quote is resolved once and held fixed for
// the whole invocation, including retries.
func (s *Service) Trade(ctx context.Context, userID string, order Order) (*TradeResult, error) {
	sym, err := symbol.Parse(order.Symbol)
	if err != nil {
		return nil, err
	}
	if order.Shares <= 0 {
		return nil, errors.New("shares must be a positive integer")
	}
	if order.Type != model.SideBuy && order.Type != model.SideSell {
		return nil, errors.New(`type must be "buy" or "sell"`)
	}

	q := s.quotes.Lookup(sym)
	tradeValue := q.Price.Mul(decimal.NewFromInt(order.Shares))

	start := time.Now()
	var result *TradeResult

	for attempt := 1; ; attempt++ {
		err = s.store.UpdateAccount(ctx, userID, func(tx store.AccountTx) error {
			result, err = applyTrade(tx, sym, order, q, tradeValue)
			return err
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		if attempt >= s.retry.MaxAttempts {
			slog.Warn("trade retries exhausted", "user", userID, "symbol", sym, "attempts", attempt)
			return nil, ErrRetriesExhausted
		}
		metrics.TradeConflictRetries.Inc()
		select {
		case <-time.After(time.Duration(attempt) * s.retry.Backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	metrics.TradesTotal.WithLabelValues(order.Type).Inc()
	metrics.TradeLatency.WithLabelValues(order.Type).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"user", userID,
		"symbol", sym,
		"type", order.Type,
		"shares", order.Shares,
		"price", q.Price.String(),
		"total", tradeValue.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        "trade_executed",
			UserID:      userID,
			Symbol:      sym,
			TradeType:   order.Type,
			Shares:      order.Shares,
			Price:       q.Price.String(),
			Total:       tradeValue.String(),
			CashBalance: result.CashBalance.String(),
		})
	}
	return result, nil
}

// applyTrade is the transaction body: the single read-modify-write with
// two branches that the rest of the system revolves around. It runs
// inside the store's atomic scope and must stay side-effect free apart
// from staged writes.
func applyTrade(tx store.AccountTx, sym string, order Order, q quote.Quote, tradeValue decimal.Decimal) (*TradeResult, error) {
	account, err := tx.Account()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}

	pos, held, err := tx.Position(sym)
	if err != nil {
		return nil, err
	}

	var newBalance decimal.Decimal
	var newPos *model.Position

	switch order.Type {
	case model.SideBuy:
		if account.CashBalance.LessThan(tradeValue) {
			metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
			return nil, ErrInsufficientFunds
		}
		newBalance = account.CashBalance.Sub(tradeValue)

		// Existing profit is carried over, not recomputed; the price
		// refresher owns mark-to-market.
		profit := decimal.Zero
		existing := int64(0)
		if held {
			profit = pos.Profit
			existing = pos.Shares
		}
		newPos = &model.Position{
			UserID:       account.UserID,
			Symbol:       sym,
			Name:         q.Name,
			Shares:       existing + order.Shares,
			CurrentPrice: q.Price,
			Profit:       profit,
		}
		tx.PutPosition(newPos)

	case model.SideSell:
		if !held || pos.Shares < order.Shares {
			metrics.TradeRejections.WithLabelValues("insufficient_shares").Inc()
			return nil, ErrInsufficientShares
		}
		newBalance = account.CashBalance.Add(tradeValue)

		remaining := pos.Shares - order.Shares
		if remaining == 0 {
			tx.DeletePosition(sym)
		} else {
			updated := *pos
			updated.Shares = remaining
			newPos = &updated
			tx.PutPosition(newPos)
		}
	}

	tx.SetBalance(newBalance)

	record := model.TransactionRecord{
		UserID: account.UserID,
		Type:   order.Type,
		Symbol: sym,
		Shares: order.Shares,
		Price:  q.Price,
		Total:  tradeValue,
	}
	tx.AppendRecord(&record)

	return &TradeResult{
		Record:      record,
		CashBalance: newBalance,
		Position:    newPos,
	}, nil
}

// Deposit adds funds to the user's account, creating it on first deposit.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, errors.New("deposit amount must be positive")
	}
	account, err := s.store.Deposit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	metrics.TradesTotal.WithLabelValues(model.TxDeposit).Inc()
	slog.Info("deposit", "user", userID, "amount", amount.String())

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        "deposit",
			UserID:      userID,
			Total:       amount.String(),
			CashBalance: account.CashBalance.String(),
		})
	}
	return account, nil
}

// Withdraw removes funds, failing with ErrInsufficientFunds if the
// balance cannot cover the amount.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, errors.New("withdrawal amount must be positive")
	}

	var balance decimal.Decimal
	err := s.store.UpdateAccount(ctx, userID, func(tx store.AccountTx) error {
		account, err := tx.Account()
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoAccount
		}
		if err != nil {
			return err
		}
		if account.CashBalance.LessThan(amount) {
			metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
			return ErrInsufficientFunds
		}
		balance = account.CashBalance.Sub(amount)
		tx.SetBalance(balance)
		tx.AppendRecord(&model.TransactionRecord{
			UserID: userID,
			Type:   model.TxWithdraw,
			Total:  amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(model.TxWithdraw).Inc()
	slog.Info("withdrawal", "user", userID, "amount", amount.String())

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        "withdrawal",
			UserID:      userID,
			Total:       amount.String(),
			CashBalance: balance.String(),
		})
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Portfolio assembles the account, its positions, and derived totals.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}

	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	value := decimal.Zero
	for i := range positions {
		value = value.Add(positions[i].MarketValue())
	}

	return &model.Portfolio{
		UserID:         userID,
		CashBalance:    account.CashBalance,
		Positions:      positions,
		PortfolioValue: value,
		TotalValue:     account.CashBalance.Add(value),
	}, nil
}

// Transactions returns the user's transaction log, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]model.TransactionRecord, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}
