package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	base  = common.Address{}
	token = common.HexToAddress("0x7700000000000000000000000000000000000000")
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func newTestStore(t *testing.T) *Store {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrder(id uint64) OrderRecord {
	return OrderRecord{
		ID:          id,
		Owner:       alice,
		AskAsset:    token,
		AskAmount:   uint256.NewInt(100),
		OfferAsset:  base,
		OfferAmount: uint256.NewInt(50),
		CreatedAt:   1700000000000 + int64(id),
	}
}

// TestLoadStateEmpty checks a fresh database reads back as empty state.
func TestLoadStateEmpty(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(st.Balances) != 0 || len(st.Orders) != 0 || st.OrderCount != 0 {
		t.Errorf("state not empty: %d balances, %d orders, count %d",
			len(st.Balances), len(st.Orders), st.OrderCount)
	}
}

// TestBalanceRoundTrip checks balances survive a write/load cycle exactly.
func TestBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Includes a value beyond uint64 to exercise full-width decimals
	big, err := uint256.FromDecimal("340282366920938463463374607431768211456") // 2^128
	if err != nil {
		t.Fatal(err)
	}

	b := s.NewBatch()
	defer b.Close()
	if err := b.SetBalance(base, alice, uint256.NewInt(42)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetBalance(token, bob, big); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(st.Balances) != 2 {
		t.Fatalf("balances = %d, want 2", len(st.Balances))
	}

	found := 0
	for _, rec := range st.Balances {
		switch {
		case rec.Asset == base && rec.Account == alice:
			if !rec.Amount.Eq(uint256.NewInt(42)) {
				t.Errorf("base/alice = %s, want 42", rec.Amount.Dec())
			}
			found++
		case rec.Asset == token && rec.Account == bob:
			if !rec.Amount.Eq(big) {
				t.Errorf("token/bob = %s, want %s", rec.Amount.Dec(), big.Dec())
			}
			found++
		}
	}
	if found != 2 {
		t.Errorf("missing balance records, matched %d", found)
	}
}

// TestOrderLogRoundTrip checks orders come back dense and in id sequence.
func TestOrderLogRoundTrip(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	defer b.Close()
	for id := uint64(1); id <= 3; id++ {
		rec := testOrder(id)
		if id == 2 {
			rec.Cancelled = true
		}
		if err := b.PutOrder(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.SetOrderCount(3); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if st.OrderCount != 3 || len(st.Orders) != 3 {
		t.Fatalf("count = %d, records = %d, want 3/3", st.OrderCount, len(st.Orders))
	}
	for i, rec := range st.Orders {
		if rec.ID != uint64(i)+1 {
			t.Errorf("record %d has id %d", i, rec.ID)
		}
	}
	if !st.Orders[1].Cancelled || st.Orders[1].Filled {
		t.Error("order 2 status flags lost")
	}
	if !st.Orders[0].AskAmount.Eq(uint256.NewInt(100)) {
		t.Errorf("ask amount = %s, want 100", st.Orders[0].AskAmount.Dec())
	}
}

// TestLoadStateDetectsCountMismatch checks corruption is refused, not repaired.
func TestLoadStateDetectsCountMismatch(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	defer b.Close()
	if err := b.PutOrder(testOrder(1)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOrderCount(2); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.LoadState(); err == nil {
		t.Error("count/record mismatch should fail the load")
	}
}

// TestRecentTradesNewestFirst checks trade history ordering and limit.
func TestRecentTradesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	defer b.Close()
	for i := uint64(1); i <= 3; i++ {
		rec := TradeRecord{
			OrderID:     i,
			Maker:       alice,
			Taker:       bob,
			AskAsset:    token,
			AskAmount:   uint256.NewInt(100 * i),
			OfferAsset:  base,
			OfferAmount: uint256.NewInt(50),
			Fee:         uint256.NewInt(10 * i),
			Timestamp:   1700000000000 + int64(i),
		}
		if err := b.PutTrade(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	trades, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("recent trades failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].OrderID != 3 || trades[1].OrderID != 2 {
		t.Errorf("order = [%d, %d], want [3, 2]", trades[0].OrderID, trades[1].OrderID)
	}
	if !trades[0].Fee.Eq(uint256.NewInt(30)) {
		t.Errorf("fee = %s, want 30", trades[0].Fee.Dec())
	}
}

// TestPutOrderOverwritesStatus checks a status update replaces the record.
func TestPutOrderOverwritesStatus(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	if err := b.PutOrder(testOrder(1)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOrderCount(1); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	b.Close()

	upd := testOrder(1)
	upd.Filled = true
	b2 := s.NewBatch()
	defer b2.Close()
	if err := b2.PutOrder(upd); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(st.Orders) != 1 || !st.Orders[0].Filled {
		t.Error("status update not persisted")
	}
}
