package exchange

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Events are how external indexers reconstruct history. The engine publishes
// one event per successful mutating operation, after the storage batch has
// committed.

// DepositEvent is emitted by DepositBase and DepositToken.
type DepositEvent struct {
	Asset      common.Address
	User       common.Address
	Amount     *uint256.Int
	NewBalance *uint256.Int
}

// WithdrawEvent is emitted by WithdrawBase and WithdrawToken.
type WithdrawEvent struct {
	Asset      common.Address
	User       common.Address
	Amount     *uint256.Int
	NewBalance *uint256.Int
}

// OrderEvent is emitted by MakeOrder.
type OrderEvent struct {
	Order Order
}

// CancelEvent is emitted by CancelOrder with the original order fields.
type CancelEvent struct {
	Order Order
}

// TradeEvent is emitted by FillOrder.
type TradeEvent struct {
	OrderID     uint64
	Maker       common.Address
	Taker       common.Address
	AskAsset    common.Address
	AskAmount   *uint256.Int
	OfferAsset  common.Address
	OfferAmount *uint256.Int
	Fee         *uint256.Int
	Timestamp   int64
}

// Event is one of the *Event types above.
type Event any

// Feed fans engine events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event and should resync from
// storage.
type Feed struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered event channel. The returned cancel func
// unregisters and closes it.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *Feed) publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Buffer full, skip this subscriber
		}
	}
}
