package exchange

import "github.com/ethereum/go-ethereum/common"

// BaseAsset is the reserved sentinel identifying the native base unit.
// It must never be used as a token address: token operations reject it with
// ErrInvalidAsset, and native value only moves through DepositBase and
// WithdrawBase.
var BaseAsset = common.Address{}

// IsBase reports whether asset is the native base unit sentinel.
func IsBase(asset common.Address) bool {
	return asset == BaseAsset
}
