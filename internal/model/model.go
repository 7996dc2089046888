// Package model defines the core domain types shared across the paper
// trading engine. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction record types.
const (
	TxDeposit  = "deposit"
	TxWithdraw = "withdraw"
	TxBuy      = "buy"
	TxSell     = "sell"
)

// Trade order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var validTxTypes = map[string]bool{
	TxDeposit:  true,
	TxWithdraw: true,
	TxBuy:      true,
	TxSell:     true,
}

// ErrMalformedRecord is returned when a document read from the store does
// not satisfy its schema invariants.
var ErrMalformedRecord = errors.New("model: malformed record")

// Account holds one user's cash balance. Created implicitly on first
// deposit, never deleted. Mutated only by deposits, withdrawals, and the
// ledger transaction.
type Account struct {
	UserID      string          `json:"user_id" db:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate checks the account's schema invariants.
func (a *Account) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("%w: account missing user_id", ErrMalformedRecord)
	}
	if a.CashBalance.IsNegative() {
		return fmt.Errorf("%w: account %s has negative cash balance %s",
			ErrMalformedRecord, a.UserID, a.CashBalance)
	}
	return nil
}

// Position is one user's holding in one symbol. The record exists only
// while Shares > 0; a sell that brings the count to zero deletes it.
type Position struct {
	UserID       string          `json:"user_id" db:"user_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Name         string          `json:"name" db:"name"`
	Shares       int64           `json:"shares" db:"shares"`
	CurrentPrice decimal.Decimal `json:"current_price" db:"current_price"`
	Profit       decimal.Decimal `json:"profit" db:"profit"` // mark-to-market gain/loss
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate checks the position's schema invariants.
func (p *Position) Validate() error {
	if p.UserID == "" || p.Symbol == "" {
		return fmt.Errorf("%w: position missing user_id or symbol", ErrMalformedRecord)
	}
	if p.Shares <= 0 {
		return fmt.Errorf("%w: position %s/%s has non-positive shares %d",
			ErrMalformedRecord, p.UserID, p.Symbol, p.Shares)
	}
	return nil
}

// MarketValue returns shares × current price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Shares))
}

// TransactionRecord is an immutable, append-only ledger entry. Symbol,
// Shares, and Price are set for buy/sell only; Total is the absolute cash
// amount moved. Date is server-assigned and non-decreasing per account.
type TransactionRecord struct {
	ID     string          `json:"id" db:"id"`
	UserID string          `json:"user_id" db:"user_id"`
	Type   string          `json:"type" db:"type"`
	Symbol string          `json:"symbol,omitempty" db:"symbol"`
	Shares int64           `json:"shares,omitempty" db:"shares"`
	Price  decimal.Decimal `json:"price" db:"price"`
	Total  decimal.Decimal `json:"total" db:"total"`
	Date   time.Time       `json:"date" db:"date"`
}

// Validate checks the record's schema invariants.
func (r *TransactionRecord) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: transaction missing user_id", ErrMalformedRecord)
	}
	if !validTxTypes[r.Type] {
		return fmt.Errorf("%w: transaction %s has unknown type %q",
			ErrMalformedRecord, r.ID, r.Type)
	}
	if r.Total.IsNegative() {
		return fmt.Errorf("%w: transaction %s has negative total %s",
			ErrMalformedRecord, r.ID, r.Total)
	}
	if r.Type == TxBuy || r.Type == TxSell {
		if r.Symbol == "" || r.Shares <= 0 {
			return fmt.Errorf("%w: trade record %s missing symbol or shares",
				ErrMalformedRecord, r.ID)
		}
	}
	return nil
}

// Portfolio is the read-side aggregate returned to clients: the account
// plus its open positions and derived totals.
type Portfolio struct {
	UserID         string          `json:"user_id"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	Positions      []Position      `json:"positions"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"` // Σ shares × price
	TotalValue     decimal.Decimal `json:"total_value"`     // cash + portfolio value
}

// Candle is one daily OHLCV bar from the market-data provider.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}
