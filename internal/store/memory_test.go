package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
	"github.com/stockpilot/paper-engine/internal/store"
)

func TestMemoryStore_DepositCreatesAccount(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	account, err := ms.Deposit(ctx, "user1", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("balance = %s, want 10000", account.CashBalance)
	}
	if account.CreatedAt.IsZero() || account.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Second deposit accumulates on the same account.
	account, err = ms.Deposit(ctx, "user1", decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.CashBalance.Equal(decimal.NewFromInt(10500)) {
		t.Errorf("balance = %s, want 10500", account.CashBalance)
	}

	records, _ := ms.ListTransactions(ctx, "user1", 0)
	if len(records) != 2 {
		t.Fatalf("expected 2 deposit records, got %d", len(records))
	}
	for _, r := range records {
		if r.Type != model.TxDeposit {
			t.Errorf("record type = %s, want deposit", r.Type)
		}
		if r.ID == "" {
			t.Error("record missing generated ID")
		}
	}
}

func TestMemoryStore_GetAccountNotFound(t *testing.T) {
	ms := store.NewMemoryStore()

	_, err := ms.GetAccount(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateAccountAtomicity(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.Deposit(ctx, "user1", decimal.NewFromInt(1000))

	// A callback error must discard every staged write.
	err := ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.SetBalance(decimal.Zero)
		tx.PutPosition(&model.Position{Symbol: "AAPL", Name: "Apple Inc.", Shares: 5})
		tx.AppendRecord(&model.TransactionRecord{Type: model.TxBuy, Symbol: "AAPL", Shares: 5})
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}

	account, _ := ms.GetAccount(ctx, "user1")
	if !account.CashBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s, want untouched 1000", account.CashBalance)
	}
	if _, err := ms.GetPosition(ctx, "user1", "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("staged position leaked: err=%v", err)
	}
	records, _ := ms.ListTransactions(ctx, "user1", 0)
	if len(records) != 1 {
		t.Errorf("staged record leaked: %d records", len(records))
	}
}

func TestMemoryStore_UpdateAccountCommit(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.Deposit(ctx, "user1", decimal.NewFromInt(1000))

	err := ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		account, err := tx.Account()
		if err != nil {
			return err
		}
		tx.SetBalance(account.CashBalance.Sub(decimal.NewFromInt(100)))
		tx.PutPosition(&model.Position{Symbol: "DIS", Name: "The Walt Disney Company", Shares: 1,
			CurrentPrice: decimal.NewFromInt(100)})
		tx.AppendRecord(&model.TransactionRecord{Type: model.TxBuy, Symbol: "DIS", Shares: 1,
			Price: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	account, _ := ms.GetAccount(ctx, "user1")
	if !account.CashBalance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("balance = %s, want 900", account.CashBalance)
	}

	pos, err := ms.GetPosition(ctx, "user1", "DIS")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.UserID != "user1" {
		t.Errorf("position user = %q, want user1 stamped by tx", pos.UserID)
	}
	if pos.UpdatedAt.IsZero() {
		t.Error("position timestamp not set on commit")
	}
}

func TestMemoryStore_DeletePosition(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.Deposit(ctx, "user1", decimal.NewFromInt(1000))

	ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.PutPosition(&model.Position{Symbol: "V", Name: "Visa Inc.", Shares: 2})
		return nil
	})
	ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.DeletePosition("V")
		return nil
	})

	if _, err := ms.GetPosition(ctx, "user1", "V"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected position deleted, got err=%v", err)
	}
	positions, _ := ms.ListPositions(ctx, "user1")
	if len(positions) != 0 {
		t.Errorf("expected no positions, got %d", len(positions))
	}
}

func TestMemoryStore_TxPositionRead(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.Deposit(ctx, "user1", decimal.NewFromInt(1000))

	ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.PutPosition(&model.Position{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Shares: 7})
		return nil
	})

	err := ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		pos, ok, err := tx.Position("JPM")
		if err != nil {
			return err
		}
		if !ok || pos.Shares != 7 {
			t.Errorf("tx read: ok=%v pos=%+v, want 7 shares", ok, pos)
		}

		_, ok, err = tx.Position("MSFT")
		if err != nil {
			return err
		}
		if ok {
			t.Error("tx read reported a position that does not exist")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryStore_ListTransactionsNewestFirst(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.Deposit(ctx, "user1", decimal.NewFromInt(100))
	ms.Deposit(ctx, "other", decimal.NewFromInt(999))
	ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.AppendRecord(&model.TransactionRecord{Type: model.TxBuy, Symbol: "AAPL", Shares: 1,
			Total: decimal.NewFromInt(10)})
		return nil
	})
	ms.UpdateAccount(ctx, "user1", func(tx store.AccountTx) error {
		tx.AppendRecord(&model.TransactionRecord{Type: model.TxSell, Symbol: "AAPL", Shares: 1,
			Total: decimal.NewFromInt(10)})
		return nil
	})

	records, err := ms.ListTransactions(ctx, "user1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records for user1, got %d", len(records))
	}
	want := []string{model.TxSell, model.TxBuy, model.TxDeposit}
	for i, w := range want {
		if records[i].Type != w {
			t.Errorf("records[%d].Type = %s, want %s", i, records[i].Type, w)
		}
	}

	// Limit returns only the newest.
	records, _ = ms.ListTransactions(ctx, "user1", 2)
	if len(records) != 2 || records[0].Type != model.TxSell {
		t.Errorf("limited list = %+v, want newest 2", records)
	}
}

func TestMemoryStore_ListAccountIDs(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.Deposit(ctx, "charlie", decimal.NewFromInt(1))
	ms.Deposit(ctx, "alice", decimal.NewFromInt(1))
	ms.Deposit(ctx, "bob", decimal.NewFromInt(1))

	ids, err := ms.ListAccountIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"alice", "bob", "charlie"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}
