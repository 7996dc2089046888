// Package store defines the persistence interface for the paper trading
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an atomic account update lost a race
	// with a concurrent writer. Callers may retry the whole update.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// AccountTx is the scope handed to an UpdateAccount callback. Reads see
// the state at transaction start; writes are buffered and applied
// atomically on commit. Mirrors a document-store run-transaction scope.
type AccountTx interface {
	// Account returns the account under update, or ErrNotFound.
	Account() (*model.Account, error)

	// Position returns the position for symbol, with ok=false if the
	// user holds no shares of it.
	Position(symbol string) (pos *model.Position, ok bool, err error)

	// SetBalance stages a new cash balance.
	SetBalance(balance decimal.Decimal)

	// PutPosition stages a position create-or-replace.
	PutPosition(pos *model.Position)

	// DeletePosition stages removal of the position for symbol.
	DeletePosition(symbol string)

	// AppendRecord stages an append-only transaction record. The store
	// assigns the record's Date at commit.
	AppendRecord(rec *model.TransactionRecord)
}

// Store is the persistence interface. All mutation of balances and share
// counts goes through UpdateAccount or Deposit; there is no other write
// path to those fields.
type Store interface {
	// --- Account reads ---

	// GetAccount retrieves one user's account.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// ListAccountIDs returns the IDs of all known accounts.
	ListAccountIDs(ctx context.Context) ([]string, error)

	// --- Position reads ---

	// GetPosition retrieves one holding, or ErrNotFound.
	GetPosition(ctx context.Context, userID, symbol string) (*model.Position, error)

	// ListPositions returns all open holdings for a user.
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)

	// --- Transaction log reads ---

	// ListTransactions returns up to limit records for a user, newest
	// first (display order). limit <= 0 means no limit.
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.TransactionRecord, error)

	// --- Writes ---

	// Deposit atomically adds amount to the user's balance, creating the
	// account if absent, and appends a deposit record.
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error)

	// UpdateAccount runs fn inside an atomic read-modify-write unit over
	// one account, its positions, and its transaction log. Either every
	// staged write commits or none do; other readers never observe an
	// intermediate state. A conflicting concurrent commit yields
	// ErrConflict with no effect applied. An error from fn aborts the
	// transaction and is returned unchanged.
	UpdateAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) error
}
