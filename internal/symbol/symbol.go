// Package symbol handles ticker symbol normalization and validation at
// the order boundary.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches exchange-style tickers: 1–6 letters with an
// optional class suffix, e.g. AAPL, BRK.B.
var symbolRegex = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z])?$`)

// ErrInvalidSymbol is returned for symbols that cannot name a listing.
var ErrInvalidSymbol = errors.New("symbol: invalid ticker symbol")

// Normalize trims whitespace and upper-cases the symbol. Case
// normalization happens here once; everything downstream sees the
// canonical form.
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// Parse normalizes and validates a raw symbol.
func Parse(raw string) (string, error) {
	sym := Normalize(raw)
	if sym == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return sym, nil
}
