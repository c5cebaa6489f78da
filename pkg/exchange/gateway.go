package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetGateway is the external custody surface: the fungible-token contract
// interface plus the host's native-value transfer primitive. The engine is
// the only caller. Every method either fully moves the value or returns an
// error satisfying ErrTransferFailed with no effect.
//
// Gateway calls must be treated as potentially re-entrant: the engine debits
// its ledger before any push and credits only after a successful pull, so a
// re-entrant call can never observe a not-yet-debited balance.
type AssetGateway interface {
	// NativePull moves native value from the caller's external wallet into
	// exchange custody (the value attached to a deposit call).
	NativePull(from common.Address, amount *uint256.Int) error

	// NativePush moves native value from exchange custody back to an
	// external wallet.
	NativePush(to common.Address, amount *uint256.Int) error

	// TokenPull moves tokens from the caller's external wallet into custody.
	// Requires the caller to have pre-authorized at least amount.
	TokenPull(token, from common.Address, amount *uint256.Int) error

	// TokenPush moves tokens from custody back to an external wallet.
	TokenPush(token, to common.Address, amount *uint256.Int) error
}
