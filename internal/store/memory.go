package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// UpdateAccount serializes conflicting writers with a single lock, so
// concurrent updates to one account always see each other's post-state.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	positions map[string]map[string]*model.Position // userID → symbol → position
	records   []model.TransactionRecord

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		positions: make(map[string]map[string]*model.Position),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAccountIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, symbol string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[userID][symbol]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions[userID] {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]model.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TransactionRecord
	// Records are appended in commit order; walk backwards for newest-first.
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID != userID {
			continue
		}
		result = append(result, s.records[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) Deposit(_ context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a, ok := s.accounts[userID]
	if !ok {
		a = &model.Account{UserID: userID, CashBalance: decimal.Zero, CreatedAt: now}
		s.accounts[userID] = a
	}
	a.CashBalance = a.CashBalance.Add(amount)
	a.UpdatedAt = now

	s.records = append(s.records, model.TransactionRecord{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   model.TxDeposit,
		Total:  amount,
		Date:   now,
	})

	copy := *a
	return &copy, nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, userID string, fn func(tx AccountTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx buffers writes so an error from the callback leaves the store
// untouched. Runs entirely under the store lock, so reads are consistent.
type memoryTx struct {
	store  *MemoryStore
	userID string

	balance *decimal.Decimal
	puts    []model.Position
	deletes []string
	appends []model.TransactionRecord
}

func (tx *memoryTx) Account() (*model.Account, error) {
	a, ok := tx.store.accounts[tx.userID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *a
	return &copy, nil
}

func (tx *memoryTx) Position(symbol string) (*model.Position, bool, error) {
	p, ok := tx.store.positions[tx.userID][symbol]
	if !ok {
		return nil, false, nil
	}
	copy := *p
	return &copy, true, nil
}

func (tx *memoryTx) SetBalance(balance decimal.Decimal) {
	tx.balance = &balance
}

func (tx *memoryTx) PutPosition(pos *model.Position) {
	p := *pos
	p.UserID = tx.userID
	tx.puts = append(tx.puts, p)
}

func (tx *memoryTx) DeletePosition(symbol string) {
	tx.deletes = append(tx.deletes, symbol)
}

func (tx *memoryTx) AppendRecord(rec *model.TransactionRecord) {
	r := *rec
	r.UserID = tx.userID
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	tx.appends = append(tx.appends, r)
}

func (tx *memoryTx) commit() {
	now := tx.store.now()

	if tx.balance != nil {
		if a, ok := tx.store.accounts[tx.userID]; ok {
			a.CashBalance = *tx.balance
			a.UpdatedAt = now
		}
	}
	for i := range tx.puts {
		p := tx.puts[i]
		p.UpdatedAt = now
		m, ok := tx.store.positions[tx.userID]
		if !ok {
			m = make(map[string]*model.Position)
			tx.store.positions[tx.userID] = m
		}
		m[p.Symbol] = &p
	}
	for _, sym := range tx.deletes {
		delete(tx.store.positions[tx.userID], sym)
	}
	for i := range tx.appends {
		r := tx.appends[i]
		r.Date = now
		tx.store.records = append(tx.store.records, r)
	}
}
