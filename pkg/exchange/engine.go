// Package exchange implements the custodial exchange engine: deposits and
// withdrawals against the balance ledger, order creation and cancellation
// against the order book, and atomic trade settlement with a taker fee.
//
// Every public operation is serialized under one mutex and either fully
// completes or fully aborts. External value movement goes through the
// AssetGateway in checks-effects-interactions order.
package exchange

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/custodex/custodex/pkg/exchange/book"
	"github.com/custodex/custodex/pkg/exchange/ledger"
	"github.com/custodex/custodex/pkg/storage"
	"github.com/custodex/custodex/pkg/util"
)

// Re-exports so callers outside the engine deal with one package.
type Order = book.Order

// Exchange is the single-writer state machine over the ledger and the order
// book. The caller identity is an explicit parameter on every mutating
// operation; the engine performs authorization only, never authentication.
type Exchange struct {
	mu sync.Mutex

	feeAccount common.Address
	feePercent uint64 // 0..100, immutable after construction

	ledger  *ledger.Ledger
	book    *book.Book
	gateway AssetGateway
	store   *storage.Store
	feed    *Feed
	clock   util.Clock
	log     *zap.SugaredLogger

	lastStamp int64 // last issued timestamp, keeps CreatedAt non-decreasing
}

// New builds an engine and reloads persisted state from the store.
func New(feeAccount common.Address, feePercent uint64, gw AssetGateway, store *storage.Store, clock util.Clock, logger *zap.SugaredLogger) (*Exchange, error) {
	if feePercent > 100 {
		return nil, fmt.Errorf("fee percent out of range: %d", feePercent)
	}
	if gw == nil {
		return nil, fmt.Errorf("nil asset gateway")
	}
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := &Exchange{
		feeAccount: feeAccount,
		feePercent: feePercent,
		ledger:     ledger.New(),
		book:       book.New(),
		gateway:    gw,
		store:      store,
		feed:       NewFeed(),
		clock:      clock,
		log:        logger,
	}

	st, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	for _, bal := range st.Balances {
		e.ledger.SetBalance(bal.Asset, bal.Account, bal.Amount)
	}
	for _, rec := range st.Orders {
		o := &Order{
			Owner:       rec.Owner,
			AskAsset:    rec.AskAsset,
			AskAmount:   rec.AskAmount,
			OfferAsset:  rec.OfferAsset,
			OfferAmount: rec.OfferAmount,
			CreatedAt:   rec.CreatedAt,
		}
		id := e.book.Append(o)
		if id != rec.ID {
			return nil, fmt.Errorf("order log corrupt: expected id %d, got %d", id, rec.ID)
		}
		if rec.Filled {
			e.book.MarkFilled(id)
		}
		if rec.Cancelled {
			e.book.MarkCancelled(id)
		}
		if rec.CreatedAt > e.lastStamp {
			e.lastStamp = rec.CreatedAt
		}
	}

	logger.Infow("exchange_loaded",
		"balances", len(st.Balances),
		"orders", st.OrderCount,
		"fee_account", feeAccount.Hex(),
		"fee_percent", feePercent)
	return e, nil
}

// Events returns the engine's event feed.
func (e *Exchange) Events() *Feed { return e.feed }

// FeeAccount returns the fixed fee recipient.
func (e *Exchange) FeeAccount() common.Address { return e.feeAccount }

// FeePercent returns the fixed integer fee percent.
func (e *Exchange) FeePercent() uint64 { return e.feePercent }

// BalanceOf is a pass-through read of the ledger. Public information.
func (e *Exchange) BalanceOf(asset, account common.Address) *uint256.Int {
	return e.ledger.BalanceOf(asset, account)
}

// Balances returns a deterministic snapshot of every ledger entry.
func (e *Exchange) Balances() []ledger.Entry {
	return e.ledger.Entries()
}

// OrderCount returns the number of orders ever created.
func (e *Exchange) OrderCount() uint64 { return e.book.Count() }

// GetOrder returns the order for id, or ErrNotFound.
func (e *Exchange) GetOrder(id uint64) (Order, error) {
	o, ok := e.book.Get(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *o, nil
}

// Orders returns every order in id sequence.
func (e *Exchange) Orders() []*Order { return e.book.All() }

func (e *Exchange) IsFilled(id uint64) bool    { return e.book.IsFilled(id) }
func (e *Exchange) IsCancelled(id uint64) bool { return e.book.IsCancelled(id) }

// RecentTrades returns settled trades, newest first.
func (e *Exchange) RecentTrades(limit int) ([]storage.TradeRecord, error) {
	return e.store.RecentTrades(limit)
}

// DepositBase credits the caller's base-unit balance with value pulled from
// the host. Value only enters custody through this call or DepositToken;
// there is no implicit crediting path.
func (e *Exchange) DepositBase(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.gateway.NativePull(caller, amount); err != nil {
		return nil, wrapTransfer(err)
	}
	newBal, err := e.credit(BaseAsset, caller, amount)
	if err != nil {
		// Value is in custody but could not be recorded: hand it back.
		if perr := e.gateway.NativePush(caller, amount); perr != nil {
			e.log.Errorw("deposit_unwind_failed", "user", caller.Hex(), "amount", amount.Dec(), "err", perr)
		}
		return nil, err
	}

	e.feed.publish(DepositEvent{Asset: BaseAsset, User: caller, Amount: amount.Clone(), NewBalance: newBal})
	e.log.Infow("deposit", "asset", "base", "user", caller.Hex(), "amount", amount.Dec(), "balance", newBal.Dec())
	return newBal, nil
}

// DepositToken pulls pre-authorized tokens from the caller's wallet and
// credits the ledger. The base-unit sentinel is rejected: native value must
// use DepositBase.
func (e *Exchange) DepositToken(caller, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if IsBase(token) {
		return nil, fmt.Errorf("%w: base unit cannot be deposited as a token", ErrInvalidAsset)
	}
	if err := e.gateway.TokenPull(token, caller, amount); err != nil {
		return nil, wrapTransfer(err)
	}
	newBal, err := e.credit(token, caller, amount)
	if err != nil {
		if perr := e.gateway.TokenPush(token, caller, amount); perr != nil {
			e.log.Errorw("deposit_unwind_failed", "token", token.Hex(), "user", caller.Hex(), "amount", amount.Dec(), "err", perr)
		}
		return nil, err
	}

	e.feed.publish(DepositEvent{Asset: token, User: caller, Amount: amount.Clone(), NewBalance: newBal})
	e.log.Infow("deposit", "asset", token.Hex(), "user", caller.Hex(), "amount", amount.Dec(), "balance", newBal.Dec())
	return newBal, nil
}

// WithdrawBase debits the caller's base-unit balance, then instructs the
// host to transfer the value out. The debit precedes the external call so a
// re-entrant gateway callback cannot observe a not-yet-debited balance.
func (e *Exchange) WithdrawBase(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.withdraw(BaseAsset, caller, amount)
}

// WithdrawToken debits the caller's token balance, then pushes the tokens
// out through the gateway. Rejects the base-unit sentinel.
func (e *Exchange) WithdrawToken(caller, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if IsBase(token) {
		return nil, fmt.Errorf("%w: base unit cannot be withdrawn as a token", ErrInvalidAsset)
	}
	return e.withdraw(token, caller, amount)
}

func (e *Exchange) withdraw(asset, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.ledger.Begin()
	newBal, err := j.Debit(asset, caller, amount)
	if err != nil {
		return nil, err
	}
	// Effects before interaction: the in-memory debit lands before the
	// gateway call, the durable write after the value has actually left.
	j.Commit()

	var pushErr error
	if IsBase(asset) {
		pushErr = e.gateway.NativePush(caller, amount)
	} else {
		pushErr = e.gateway.TokenPush(asset, caller, amount)
	}
	if pushErr != nil {
		e.ledger.Credit(asset, caller, amount)
		return nil, wrapTransfer(pushErr)
	}

	batch := e.store.NewBatch()
	defer batch.Close()
	err = batch.SetBalance(asset, caller, newBal)
	if err == nil {
		err = batch.Commit()
	}
	if err != nil {
		// The value has left custody; losing the debit would mint it back.
		panic(fmt.Sprintf("exchange: failed to persist withdrawal of %s %s for %s: %v",
			amount.Dec(), asset.Hex(), caller.Hex(), err))
	}

	e.feed.publish(WithdrawEvent{Asset: asset, User: caller, Amount: amount.Clone(), NewBalance: newBal})
	e.log.Infow("withdraw", "asset", asset.Hex(), "user", caller.Hex(), "amount", amount.Dec(), "balance", newBal.Dec())
	return newBal, nil
}

// MakeOrder stores a new order with the next sequential id. No balance check
// happens here: an order may rest before its owner has the funds, and
// insufficiency only surfaces at fill time.
func (e *Exchange) MakeOrder(caller, askAsset common.Address, askAmount *uint256.Int, offerAsset common.Address, offerAmount *uint256.Int) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := &Order{
		ID:          e.book.NextID(),
		Owner:       caller,
		AskAsset:    askAsset,
		AskAmount:   askAmount.Clone(),
		OfferAsset:  offerAsset,
		OfferAmount: offerAmount.Clone(),
		CreatedAt:   e.stamp(),
	}

	batch := e.store.NewBatch()
	defer batch.Close()
	if err := batch.PutOrder(orderRecord(o, false, false)); err != nil {
		return Order{}, err
	}
	if err := batch.SetOrderCount(o.ID); err != nil {
		return Order{}, err
	}
	if err := batch.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to persist order: %w", err)
	}

	e.book.Append(o)
	e.feed.publish(OrderEvent{Order: *o})
	e.log.Infow("order_created", "id", o.ID, "owner", caller.Hex(),
		"ask_asset", askAsset.Hex(), "ask_amount", askAmount.Dec(),
		"offer_asset", offerAsset.Hex(), "offer_amount", offerAmount.Dec())
	return *o, nil
}

// CancelOrder marks the caller's own open order cancelled.
func (e *Exchange) CancelOrder(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Get(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if o.Owner != caller {
		return fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, id, o.Owner.Hex())
	}
	if e.book.IsTerminal(id) {
		return fmt.Errorf("%w: id %d", ErrOrderTerminal, id)
	}

	batch := e.store.NewBatch()
	defer batch.Close()
	if err := batch.PutOrder(orderRecord(o, false, true)); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to persist cancel: %w", err)
	}

	e.book.MarkCancelled(id)
	e.feed.publish(CancelEvent{Order: *o})
	e.log.Infow("order_cancelled", "id", id, "owner", caller.Hex())
	return nil
}

// FillOrder settles an open order between its maker and the caller (taker).
// The taker pays the ask amount plus the fee in the ask asset; the maker
// receives the ask amount and gives up the offer amount. Settlement is
// all-or-nothing: a shortfall at any step leaves every balance untouched.
func (e *Exchange) FillOrder(caller common.Address, id uint64) (TradeEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Get(id)
	if !ok {
		return TradeEvent{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.book.IsTerminal(id) {
		return TradeEvent{}, fmt.Errorf("%w: id %d", ErrOrderTerminal, id)
	}

	maker, taker := o.Owner, caller
	fee := e.fee(o.AskAmount)

	// Taker owes principal and fee combined, in the ask asset.
	total, overflow := new(uint256.Int).AddOverflow(o.AskAmount, fee)
	if overflow {
		// No balance can cover a sum past 2^256-1.
		return TradeEvent{}, fmt.Errorf("%w: ask amount plus fee exceeds representable balance", ErrInsufficientBalance)
	}

	j := e.ledger.Begin()
	if _, err := j.Debit(o.AskAsset, taker, total); err != nil {
		return TradeEvent{}, err
	}
	j.Credit(o.AskAsset, maker, o.AskAmount)
	j.Credit(o.AskAsset, e.feeAccount, fee)
	// The order is not an escrow: the maker may have spent the promised
	// funds since creation, which aborts the whole trade here.
	if _, err := j.Debit(o.OfferAsset, maker, o.OfferAmount); err != nil {
		return TradeEvent{}, err
	}
	j.Credit(o.OfferAsset, taker, o.OfferAmount)

	trade := storage.TradeRecord{
		OrderID:     id,
		Maker:       maker,
		Taker:       taker,
		AskAsset:    o.AskAsset,
		AskAmount:   o.AskAmount.Clone(),
		OfferAsset:  o.OfferAsset,
		OfferAmount: o.OfferAmount.Clone(),
		Fee:         fee,
		Timestamp:   e.stamp(),
	}

	batch := e.store.NewBatch()
	defer batch.Close()
	for _, ent := range j.Entries() {
		if err := batch.SetBalance(ent.Key.Asset, ent.Key.Account, ent.Amount); err != nil {
			return TradeEvent{}, err
		}
	}
	if err := batch.PutOrder(orderRecord(o, true, false)); err != nil {
		return TradeEvent{}, err
	}
	if err := batch.PutTrade(trade); err != nil {
		return TradeEvent{}, err
	}
	if err := batch.Commit(); err != nil {
		return TradeEvent{}, fmt.Errorf("failed to persist trade: %w", err)
	}

	j.Commit()
	e.book.MarkFilled(id)

	ev := TradeEvent{
		OrderID:     id,
		Maker:       maker,
		Taker:       taker,
		AskAsset:    o.AskAsset,
		AskAmount:   o.AskAmount.Clone(),
		OfferAsset:  o.OfferAsset,
		OfferAmount: o.OfferAmount.Clone(),
		Fee:         fee.Clone(),
		Timestamp:   trade.Timestamp,
	}
	e.feed.publish(ev)
	e.log.Infow("trade", "id", id, "maker", maker.Hex(), "taker", taker.Hex(),
		"ask_asset", o.AskAsset.Hex(), "ask_amount", o.AskAmount.Dec(),
		"offer_asset", o.OfferAsset.Hex(), "offer_amount", o.OfferAmount.Dec(),
		"fee", fee.Dec())
	return ev, nil
}

// fee computes floor(askAmount × feePercent / 100). Dust below one unit is
// absorbed, not charged.
func (e *Exchange) fee(askAmount *uint256.Int) *uint256.Int {
	fee, overflow := new(uint256.Int).MulDivOverflow(
		askAmount, uint256.NewInt(e.feePercent), uint256.NewInt(100))
	if overflow {
		// feePercent ≤ 100 keeps the quotient within range.
		panic("exchange: fee computation overflow")
	}
	return fee
}

// credit applies a single credit and persists it in one batch.
func (e *Exchange) credit(asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	j := e.ledger.Begin()
	newBal := j.Credit(asset, account, amount)

	batch := e.store.NewBatch()
	defer batch.Close()
	if err := batch.SetBalance(asset, account, newBal); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("failed to persist balance: %w", err)
	}
	j.Commit()
	return newBal, nil
}

// stamp returns a monotonically non-decreasing unix-millisecond timestamp.
func (e *Exchange) stamp() int64 {
	now := e.clock.Now().UnixMilli()
	if now < e.lastStamp {
		now = e.lastStamp
	}
	e.lastStamp = now
	return now
}

func orderRecord(o *Order, filled, cancelled bool) storage.OrderRecord {
	return storage.OrderRecord{
		ID:          o.ID,
		Owner:       o.Owner,
		AskAsset:    o.AskAsset,
		AskAmount:   o.AskAmount,
		OfferAsset:  o.OfferAsset,
		OfferAmount: o.OfferAmount,
		CreatedAt:   o.CreatedAt,
		Filled:      filled,
		Cancelled:   cancelled,
	}
}

func wrapTransfer(err error) error {
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
