package quote_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/quote"
)

func TestStaticSource_KnownSymbols(t *testing.T) {
	src := quote.NewStaticSource(1)

	cases := []struct {
		symbol string
		name   string
		price  string
	}{
		{"AAPL", "Apple Inc.", "172.5"},
		{"GOOGL", "Alphabet Inc.", "140.75"},
		{"TSLA", "Tesla, Inc.", "230.1"},
		{"NVDA", "NVIDIA Corp.", "950.3"},
		{"DIS", "The Walt Disney Company", "95.4"},
	}
	for _, tc := range cases {
		q := src.Lookup(tc.symbol)
		if q.Symbol != tc.symbol || q.Name != tc.name {
			t.Errorf("Lookup(%s) = %+v, want name %q", tc.symbol, q, tc.name)
		}
		want, _ := decimal.NewFromString(tc.price)
		if !q.Price.Equal(want) {
			t.Errorf("Lookup(%s).Price = %s, want %s", tc.symbol, q.Price, tc.price)
		}
	}
}

func TestStaticSource_UnknownSymbol(t *testing.T) {
	src := quote.NewStaticSource(42)

	q := src.Lookup("ZZZZ")
	if q.Name != "ZZZZ Stock" {
		t.Errorf("name = %q, want %q", q.Name, "ZZZZ Stock")
	}
	if q.Price.IsNegative() || q.Price.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		t.Errorf("price %s outside [0, 1000)", q.Price)
	}
	if !q.Price.Equal(q.Price.Round(2)) {
		t.Errorf("price %s not rounded to cents", q.Price)
	}
}

func TestStaticSource_UnknownSymbolDeterministicWithSeed(t *testing.T) {
	a := quote.NewStaticSource(7).Lookup("QQQ")
	b := quote.NewStaticSource(7).Lookup("QQQ")
	if !a.Price.Equal(b.Price) {
		t.Errorf("same seed gave different prices: %s vs %s", a.Price, b.Price)
	}
}

func TestStaticSource_Known(t *testing.T) {
	src := quote.NewStaticSource(1)
	if !src.Known("MSFT") {
		t.Error("Known(MSFT) = false")
	}
	if src.Known("ZZZZ") {
		t.Error("Known(ZZZZ) = true")
	}
	if got := len(src.Symbols()); got != 10 {
		t.Errorf("Symbols() returned %d entries, want 10", got)
	}
}
