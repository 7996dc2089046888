package model_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/model"
)

func TestAccountValidate(t *testing.T) {
	a := model.Account{UserID: "user1", CashBalance: decimal.NewFromInt(100)}
	if err := a.Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}

	a.UserID = ""
	if err := a.Validate(); !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("missing user_id accepted: %v", err)
	}

	a = model.Account{UserID: "user1", CashBalance: decimal.NewFromInt(-1)}
	if err := a.Validate(); !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("negative balance accepted: %v", err)
	}
}

func TestPositionValidate(t *testing.T) {
	p := model.Position{UserID: "user1", Symbol: "AAPL", Shares: 1}
	if err := p.Validate(); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}

	p.Shares = 0
	if err := p.Validate(); !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("zero-share position accepted: %v", err)
	}
}

func TestPositionMarketValue(t *testing.T) {
	p := model.Position{Shares: 10, CurrentPrice: decimal.NewFromFloat(172.50)}
	if !p.MarketValue().Equal(decimal.NewFromFloat(1725.00)) {
		t.Errorf("market value = %s, want 1725.00", p.MarketValue())
	}
}

func TestTransactionRecordValidate(t *testing.T) {
	r := model.TransactionRecord{
		ID: "1", UserID: "user1", Type: model.TxBuy, Symbol: "AAPL",
		Shares: 1, Total: decimal.NewFromInt(100),
	}
	if err := r.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	r.Type = "transfer"
	if err := r.Validate(); !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("unknown type accepted: %v", err)
	}

	r = model.TransactionRecord{ID: "2", UserID: "user1", Type: model.TxSell, Total: decimal.NewFromInt(10)}
	if err := r.Validate(); !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("trade record without symbol accepted: %v", err)
	}

	r = model.TransactionRecord{ID: "3", UserID: "user1", Type: model.TxDeposit, Total: decimal.NewFromInt(10)}
	if err := r.Validate(); err != nil {
		t.Errorf("deposit without symbol rejected: %v", err)
	}
}
