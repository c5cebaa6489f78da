package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for Pebble storage:
//
//   bal:<asset>:<account>        → balance (decimal string)
//   ord:<id>                     → order record (JSON)
//   trade:<timestamp>:<orderID>  → trade record (JSON)
//   meta:ordcount                → order count (8-byte big-endian)
//
// Numeric key segments are zero-padded to 20 digits so lexicographic
// iteration matches numeric order.

const (
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixTrade   = "trade:"
	keyOrderCount = "meta:ordcount"
)

// balanceKey returns the key for one (asset, account) entry.
// Format: "bal:{asset}:{account}"
func balanceKey(asset, account common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), account.Hex()))
}

// orderKey returns the key for an order.
// Format: "ord:{id}"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// tradeKey returns the key for a trade.
// Format: "trade:{timestamp}:{orderID}"
func tradeKey(timestamp int64, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixTrade, timestamp, orderID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
