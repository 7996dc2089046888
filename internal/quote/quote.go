// Package quote resolves symbols to display names and reference prices.
// The static table stands in for a real quote feed; the ledger only sees
// the Source interface so the stub can be swapped without touching
// transaction logic.
package quote

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// Quote is a resolved symbol: display name and reference unit price.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Source resolves a (normalized) symbol to a quote. Implementations must
// always return a usable quote; unknown symbols get a synthesized one.
type Source interface {
	Lookup(symbol string) Quote
}

type listing struct {
	name  string
	price decimal.Decimal
}

// StaticSource serves a fixed table of reference listings and synthesizes
// quotes for unknown symbols: name "<SYM> Stock", price uniform in
// [0, 1000).
type StaticSource struct {
	mu       sync.Mutex
	rng      *rand.Rand
	listings map[string]listing
}

// NewStaticSource creates the default quote table. seed drives the price
// synthesizer for unknown symbols; tests pass a fixed seed.
func NewStaticSource(seed int64) *StaticSource {
	p := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
	return &StaticSource{
		rng: rand.New(rand.NewSource(seed)),
		listings: map[string]listing{
			"AAPL":  {"Apple Inc.", p(172.50)},
			"GOOGL": {"Alphabet Inc.", p(140.75)},
			"TSLA":  {"Tesla, Inc.", p(230.10)},
			"AMZN":  {"Amazon.com, Inc.", p(175.50)},
			"MSFT":  {"Microsoft Corp.", p(420.70)},
			"NVDA":  {"NVIDIA Corp.", p(950.30)},
			"META":  {"Meta Platforms, Inc.", p(330.25)},
			"JPM":   {"JPMorgan Chase & Co.", p(155.60)},
			"V":     {"Visa Inc.", p(240.80)},
			"DIS":   {"The Walt Disney Company", p(95.40)},
		},
	}
}

// Lookup resolves symbol against the table, synthesizing a quote for
// unknown symbols.
func (s *StaticSource) Lookup(symbol string) Quote {
	if l, ok := s.listings[symbol]; ok {
		return Quote{Symbol: symbol, Name: l.name, Price: l.price}
	}

	s.mu.Lock()
	f := s.rng.Float64() * 1000
	s.mu.Unlock()

	return Quote{
		Symbol: symbol,
		Name:   symbol + " Stock",
		Price:  decimal.NewFromFloat(f).Round(2),
	}
}

// Known reports whether symbol is in the static table.
func (s *StaticSource) Known(symbol string) bool {
	_, ok := s.listings[symbol]
	return ok
}

// Symbols returns the listed symbols, for display endpoints.
func (s *StaticSource) Symbols() []string {
	out := make([]string, 0, len(s.listings))
	for sym := range s.listings {
		out = append(out, sym)
	}
	return out
}
