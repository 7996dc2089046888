package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache over account and position reads. Writes go to the primary store
// and invalidate the cache; the transaction log is never cached (it is
// read rarely and must stay strictly ordered).
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil && a.Validate() == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(userID), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	a, err := s.primary.Deposit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return a, nil
}

func (s *CachedStore) UpdateAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) error {
	if err := s.primary.UpdateAccount(ctx, userID, fn); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	return s.primary.ListAccountIDs(ctx)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, symbol string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, symbol)
}

func (s *CachedStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.TransactionRecord, error) {
	return s.primary.ListTransactions(ctx, userID, limit)
}

// --- Cache helpers ---

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	s.rdb.Del(ctx, accountKey(userID), positionsKey(userID))
}

func accountKey(uid string) string   { return fmt.Sprintf("account:%s", uid) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
