package ledger

import "errors"

// Domain errors raised by the ledger transaction. The messages are shown
// to the initiating user verbatim; callers must not assume any partial
// effect occurred.
var (
	ErrNoAccount          = errors.New("account does not exist")
	ErrInsufficientFunds  = errors.New("insufficient funds to complete this purchase")
	ErrInsufficientShares = errors.New("you cannot sell more shares than you own")
	ErrRetriesExhausted   = errors.New("trade could not be applied after retries, please try again")
)
