package exchange

import (
	"errors"

	"github.com/custodex/custodex/pkg/exchange/ledger"
)

// Error kinds surfaced by engine operations. Every failure aborts the whole
// operation: the ledger and order book are left exactly as before the call.
// Callers match with errors.Is; the wrapped text carries detail.
var (
	// ErrInsufficientBalance: a ledger debit exceeds the entry.
	ErrInsufficientBalance = ledger.ErrInsufficientBalance

	// ErrInvalidAsset: the base-unit sentinel used where a token is required.
	ErrInvalidAsset = errors.New("invalid asset")

	// ErrNotFound: order id outside [1, OrderCount].
	ErrNotFound = errors.New("order not found")

	// ErrUnauthorized: caller is not the order's owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOrderTerminal: fill or cancel on an order already filled or cancelled.
	ErrOrderTerminal = errors.New("order already terminal")

	// ErrTransferFailed: the asset gateway rejected a transfer.
	ErrTransferFailed = errors.New("transfer failed")
)
