// Package storage provides Pebble-based persistence for the exchange state:
// balance entries, the order log, and trade history. Every engine operation
// writes one atomic batch, committed before in-memory state is touched, so a
// crash can never leave a half-applied settlement on disk.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OrderRecord is the persisted form of an order plus its status flags.
type OrderRecord struct {
	ID          uint64         `json:"id"`
	Owner       common.Address `json:"owner"`
	AskAsset    common.Address `json:"askAsset"`
	AskAmount   *uint256.Int   `json:"askAmount"`
	OfferAsset  common.Address `json:"offerAsset"`
	OfferAmount *uint256.Int   `json:"offerAmount"`
	CreatedAt   int64          `json:"createdAt"`
	Filled      bool           `json:"filled"`
	Cancelled   bool           `json:"cancelled"`
}

// TradeRecord is the persisted form of one settled trade.
type TradeRecord struct {
	OrderID     uint64         `json:"orderId"`
	Maker       common.Address `json:"maker"`
	Taker       common.Address `json:"taker"`
	AskAsset    common.Address `json:"askAsset"`
	AskAmount   *uint256.Int   `json:"askAmount"`
	OfferAsset  common.Address `json:"offerAsset"`
	OfferAmount *uint256.Int   `json:"offerAmount"`
	Fee         *uint256.Int   `json:"fee"`
	Timestamp   int64          `json:"timestamp"`
}

// BalanceRecord is one (asset, account) entry read back at startup.
type BalanceRecord struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

// State is everything needed to rebuild the engine after a restart.
type State struct {
	Balances   []BalanceRecord
	Orders     []OrderRecord // in id sequence
	OrderCount uint64
}

// Store wraps a Pebble database. All writes go through Batch; the store
// itself is safe for concurrent reads.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20),
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadState reads back all balances, orders, and the order count.
// Orders come out in id sequence (keys are zero-padded).
func (s *Store) LoadState() (*State, error) {
	st := &State{}

	// Balances
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("balance iter: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := parseBalance(iter.Key(), iter.Value())
		if err != nil {
			iter.Close()
			return nil, err
		}
		st.Balances = append(st.Balances, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	// Orders
	prefix = []byte(prefixOrder)
	iter, err = s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("order iter: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Close()
			return nil, fmt.Errorf("failed to unmarshal order %s: %w", iter.Key(), err)
		}
		st.Orders = append(st.Orders, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	// Order count
	count, err := s.orderCount()
	if err != nil {
		return nil, err
	}
	st.OrderCount = count

	if st.OrderCount != uint64(len(st.Orders)) {
		return nil, fmt.Errorf("order log corrupt: count=%d, records=%d", st.OrderCount, len(st.Orders))
	}
	for i, rec := range st.Orders {
		if rec.ID != uint64(i)+1 {
			return nil, fmt.Errorf("order log corrupt: record %d has id %d", i, rec.ID)
		}
	}

	return st, nil
}

func (s *Store) orderCount() (uint64, error) {
	data, closer, err := s.db.Get([]byte(keyOrderCount))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get order count: %w", err)
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("order count value has %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func parseBalance(key, value []byte) (BalanceRecord, error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixBalance), ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return BalanceRecord{}, fmt.Errorf("malformed balance key %q", key)
	}
	amount, err := uint256.FromDecimal(string(value))
	if err != nil {
		return BalanceRecord{}, fmt.Errorf("malformed balance value for %q: %w", key, err)
	}
	return BalanceRecord{
		Asset:   common.HexToAddress(parts[0]),
		Account: common.HexToAddress(parts[1]),
		Amount:  amount,
	}, nil
}

// RecentTrades returns the most recent trades, newest first.
func (s *Store) RecentTrades(limit int) ([]TradeRecord, error) {
	prefix := []byte(prefixTrade)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iter: %w", err)
	}
	defer iter.Close()

	var trades []TradeRecord
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var rec TradeRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade %s: %w", iter.Key(), err)
		}
		trades = append(trades, rec)
	}
	return trades, nil
}

// Batch accumulates the writes of one engine operation and commits them
// atomically with a durable sync.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

// SetBalance stages the post-operation amount for one entry.
func (b *Batch) SetBalance(asset, account common.Address, amount *uint256.Int) error {
	return b.batch.Set(balanceKey(asset, account), []byte(amount.Dec()), nil)
}

// PutOrder stages an order record (create or status update).
func (b *Batch) PutOrder(rec OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	return b.batch.Set(orderKey(rec.ID), data, nil)
}

// PutTrade stages a trade record.
func (b *Batch) PutTrade(rec TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	return b.batch.Set(tradeKey(rec.Timestamp, rec.OrderID), data, nil)
}

// SetOrderCount stages the order counter.
func (b *Batch) SetOrderCount(count uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], count)
	return b.batch.Set([]byte(keyOrderCount), v[:], nil)
}

// Commit writes the batch to Pebble atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
