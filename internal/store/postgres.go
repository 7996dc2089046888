package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// UpdateAccount runs as a serializable transaction; a serialization
// failure surfaces as ErrConflict for the caller's retry policy.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id      TEXT PRIMARY KEY,
			cash_balance NUMERIC NOT NULL DEFAULT 0 CHECK (cash_balance >= 0),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS positions (
			user_id       TEXT NOT NULL REFERENCES accounts(user_id),
			symbol        TEXT NOT NULL,
			name          TEXT NOT NULL,
			shares        BIGINT NOT NULL CHECK (shares > 0),
			current_price NUMERIC NOT NULL,
			profit        NUMERIC NOT NULL DEFAULT 0,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, symbol)
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type    TEXT NOT NULL,
			symbol  TEXT,
			shares  BIGINT,
			price   NUMERIC NOT NULL DEFAULT 0,
			total   NUMERIC NOT NULL,
			date    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS transactions_user_date
			ON transactions (user_id, date DESC);
	`)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT user_id, cash_balance::TEXT, created_at, updated_at
		 FROM accounts WHERE user_id = $1`, userID))
}

func (s *PostgresStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, symbol string) (*model.Position, error) {
	return scanPosition(s.pool.QueryRow(ctx,
		`SELECT user_id, symbol, name, shares, current_price::TEXT, profit::TEXT, updated_at
		 FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol))
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, name, shares, current_price::TEXT, profit::TEXT, updated_at
		 FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.TransactionRecord, error) {
	q := `SELECT id, user_id, type, COALESCE(symbol, ''), COALESCE(shares, 0),
	             price::TEXT, total::TEXT, date
	      FROM transactions WHERE user_id = $1 ORDER BY date DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		var r model.TransactionRecord
		var priceS, totalS string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Symbol, &r.Shares,
			&priceS, &totalS, &r.Date); err != nil {
			return nil, err
		}
		r.Price, _ = decimal.NewFromString(priceS)
		r.Total, _ = decimal.NewFromString(totalS)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := scanAccount(tx.QueryRow(ctx,
		`INSERT INTO accounts (user_id, cash_balance)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (user_id) DO UPDATE
		   SET cash_balance = accounts.cash_balance + EXCLUDED.cash_balance,
		       updated_at = now()
		 RETURNING user_id, cash_balance::TEXT, created_at, updated_at`,
		userID, amount.String()))
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, total) VALUES ($1, $2, $3, $4::NUMERIC)`,
		uuid.New().String(), userID, model.TxDeposit, amount.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ptx := &postgresTx{ctx: ctx, tx: tx, userID: userID}
	if err := fn(ptx); err != nil {
		return err
	}
	if err := ptx.flush(); err != nil {
		return mapConflict(err)
	}
	return mapConflict(tx.Commit(ctx))
}

// mapConflict translates a serialization failure (SQLSTATE 40001) into
// the store's retryable sentinel.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}

// postgresTx stages writes for one account update and flushes them before
// commit, so a callback error leaves no trace.
type postgresTx struct {
	ctx    context.Context
	tx     pgx.Tx
	userID string

	balance *decimal.Decimal
	puts    []model.Position
	deletes []string
	appends []model.TransactionRecord
}

func (p *postgresTx) Account() (*model.Account, error) {
	// Row lock on the account serializes trades for one user.
	return scanAccount(p.tx.QueryRow(p.ctx,
		`SELECT user_id, cash_balance::TEXT, created_at, updated_at
		 FROM accounts WHERE user_id = $1 FOR UPDATE`, p.userID))
}

func (p *postgresTx) Position(symbol string) (*model.Position, bool, error) {
	pos, err := scanPosition(p.tx.QueryRow(p.ctx,
		`SELECT user_id, symbol, name, shares, current_price::TEXT, profit::TEXT, updated_at
		 FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		p.userID, symbol))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return pos, true, nil
}

func (p *postgresTx) SetBalance(balance decimal.Decimal) { p.balance = &balance }

func (p *postgresTx) PutPosition(pos *model.Position) {
	cp := *pos
	cp.UserID = p.userID
	p.puts = append(p.puts, cp)
}

func (p *postgresTx) DeletePosition(symbol string) { p.deletes = append(p.deletes, symbol) }

func (p *postgresTx) AppendRecord(rec *model.TransactionRecord) {
	r := *rec
	r.UserID = p.userID
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	p.appends = append(p.appends, r)
}

func (p *postgresTx) flush() error {
	if p.balance != nil {
		if _, err := p.tx.Exec(p.ctx,
			`UPDATE accounts SET cash_balance = $2::NUMERIC, updated_at = now()
			 WHERE user_id = $1`, p.userID, p.balance.String()); err != nil {
			return err
		}
	}
	for _, pos := range p.puts {
		if _, err := p.tx.Exec(p.ctx,
			`INSERT INTO positions (user_id, symbol, name, shares, current_price, profit)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC)
			 ON CONFLICT (user_id, symbol) DO UPDATE
			   SET name = EXCLUDED.name, shares = EXCLUDED.shares,
			       current_price = EXCLUDED.current_price,
			       profit = EXCLUDED.profit, updated_at = now()`,
			pos.UserID, pos.Symbol, pos.Name, pos.Shares,
			pos.CurrentPrice.String(), pos.Profit.String()); err != nil {
			return err
		}
	}
	for _, sym := range p.deletes {
		if _, err := p.tx.Exec(p.ctx,
			`DELETE FROM positions WHERE user_id = $1 AND symbol = $2`,
			p.userID, sym); err != nil {
			return err
		}
	}
	for _, r := range p.appends {
		if _, err := p.tx.Exec(p.ctx,
			`INSERT INTO transactions (id, user_id, type, symbol, shares, price, total)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::NUMERIC, $7::NUMERIC)`,
			r.ID, r.UserID, r.Type, r.Symbol, r.Shares,
			r.Price.String(), r.Total.String()); err != nil {
			return err
		}
	}
	return nil
}

// --- Row scanning helpers ---

type pgxRow interface {
	Scan(dest ...any) error
}

func scanAccount(row pgxRow) (*model.Account, error) {
	var a model.Account
	var balanceS string
	err := row.Scan(&a.UserID, &balanceS, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CashBalance, _ = decimal.NewFromString(balanceS)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var priceS, profitS string
	err := row.Scan(&p.UserID, &p.Symbol, &p.Name, &p.Shares, &priceS, &profitS, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CurrentPrice, _ = decimal.NewFromString(priceS)
	p.Profit, _ = decimal.NewFromString(profitS)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
