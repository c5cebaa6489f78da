// Package book stores orders keyed by a dense, monotonically increasing id.
// It performs no price matching: any counterparty may fill an order at its
// exact terms, and there are no partial fills. Orders are never deleted;
// history stays queryable by id forever.
package book

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Order is immutable once created except for its filled/cancelled status,
// which the book tracks separately.
type Order struct {
	ID          uint64
	Owner       common.Address
	AskAsset    common.Address // what the owner wants to receive
	AskAmount   *uint256.Int
	OfferAsset  common.Address // what the owner gives up
	OfferAmount *uint256.Int
	CreatedAt   int64 // unix milliseconds, monotonically non-decreasing
}

// Book assigns ids sequentially starting at 1, with no gaps and no reuse.
type Book struct {
	mu        sync.RWMutex
	orders    []*Order // orders[i] has ID i+1
	filled    map[uint64]bool
	cancelled map[uint64]bool
}

func New() *Book {
	return &Book{
		filled:    make(map[uint64]bool),
		cancelled: make(map[uint64]bool),
	}
}

// Count returns the number of orders ever created.
func (b *Book) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.orders))
}

// NextID returns the id the next appended order will receive.
func (b *Book) NextID() uint64 {
	return b.Count() + 1
}

// Append stores the order under the next sequential id and returns that id.
// The id is assigned here so that storage and memory can never disagree on
// density.
func (b *Book) Append(o *Order) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	o.ID = uint64(len(b.orders)) + 1
	b.orders = append(b.orders, o)
	return o.ID
}

// Get returns the order for id, or false if id is outside [1, Count].
func (b *Book) Get(id uint64) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if id < 1 || id > uint64(len(b.orders)) {
		return nil, false
	}
	return b.orders[id-1], true
}

// Exists reports whether id has been assigned.
func (b *Book) Exists(id uint64) bool {
	_, ok := b.Get(id)
	return ok
}

// MarkFilled flags the order as filled. The engine must not call this on a
// terminal order.
func (b *Book) MarkFilled(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filled[id] = true
}

// MarkCancelled flags the order as cancelled. The engine must not call this
// on a terminal order.
func (b *Book) MarkCancelled(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled[id] = true
}

func (b *Book) IsFilled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filled[id]
}

func (b *Book) IsCancelled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cancelled[id]
}

// IsTerminal reports whether the order can no longer transition.
func (b *Book) IsTerminal(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filled[id] || b.cancelled[id]
}

// All returns every order in id sequence. Read-only listing.
func (b *Book) All() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Order, len(b.orders))
	copy(out, b.orders)
	return out
}
