// Package ledger implements the exchange balance ledger: a mapping from
// (asset, account) to a non-negative uint256 amount. Trades move value
// between accounts; only deposits and withdrawals move value across the
// ledger boundary, so per-asset totals are conserved by construction.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned by a debit that exceeds the entry.
// The ledger is left unchanged.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Key identifies one balance entry.
type Key struct {
	Asset   common.Address // zero address = native base unit
	Account common.Address
}

// Ledger holds all balance entries. Entries are created implicitly on first
// credit and never deleted; a zero balance is a valid terminal state.
// Mutation goes through a Journal so that multi-step settlements commit
// all-or-nothing. Reads are safe concurrently with a single writer.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]*uint256.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[Key]*uint256.Int)}
}

// BalanceOf returns the current amount for (asset, account), zero for keys
// never credited. The returned value is a copy; callers may mutate it.
func (l *Ledger) BalanceOf(asset, account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[Key{Asset: asset, Account: account}]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// Credit adds amount to the entry. Overflow past 2^256-1 is a fatal
// invariant violation, not a recoverable error.
func (l *Ledger) Credit(asset, account common.Address, amount *uint256.Int) *uint256.Int {
	j := l.Begin()
	bal := j.Credit(asset, account, amount)
	j.Commit()
	return bal
}

// Debit subtracts amount from the entry. Fails with ErrInsufficientBalance
// if amount exceeds the current balance, leaving state unchanged.
func (l *Ledger) Debit(asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	j := l.Begin()
	bal, err := j.Debit(asset, account, amount)
	if err != nil {
		return nil, err
	}
	j.Commit()
	return bal, nil
}

// SetBalance installs an entry directly. Startup reload only.
func (l *Ledger) SetBalance(asset, account common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[Key{Asset: asset, Account: account}] = amount.Clone()
}

// Entries returns a deterministic snapshot of all entries, sorted by asset
// then account, for auditing.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.balances))
	for k, v := range l.balances {
		entries = append(entries, Entry{Key: k, Amount: v.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Asset != entries[j].Key.Asset {
			return entries[i].Key.Asset.Cmp(entries[j].Key.Asset) < 0
		}
		return entries[i].Key.Account.Cmp(entries[j].Key.Account) < 0
	})
	return entries
}

// Entry is one (asset, account) → amount pair.
type Entry struct {
	Key    Key
	Amount *uint256.Int
}

// Begin opens a journal over the ledger. Reads through the journal see its
// staged mutations; the underlying ledger is untouched until Commit.
// Single writer: at most one journal may be open at a time.
func (l *Ledger) Begin() *Journal {
	return &Journal{
		l:     l,
		dirty: make(map[Key]*uint256.Int),
	}
}

// Journal stages credits and debits against the ledger. Discarding the
// journal (not calling Commit) discards every staged mutation.
type Journal struct {
	l     *Ledger
	dirty map[Key]*uint256.Int
	keys  []Key // dirty keys in first-touch order, for deterministic commit
}

func (j *Journal) current(k Key) *uint256.Int {
	if bal, ok := j.dirty[k]; ok {
		return bal
	}
	j.l.mu.RLock()
	defer j.l.mu.RUnlock()
	if bal, ok := j.l.balances[k]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (j *Journal) stage(k Key, bal *uint256.Int) {
	if _, ok := j.dirty[k]; !ok {
		j.keys = append(j.keys, k)
	}
	j.dirty[k] = bal
}

// BalanceOf reads through the journal overlay.
func (j *Journal) BalanceOf(asset, account common.Address) *uint256.Int {
	return j.current(Key{Asset: asset, Account: account}).Clone()
}

// Credit stages amount added to the entry and returns the staged balance.
func (j *Journal) Credit(asset, account common.Address, amount *uint256.Int) *uint256.Int {
	k := Key{Asset: asset, Account: account}
	bal, overflow := new(uint256.Int).AddOverflow(j.current(k), amount)
	if overflow {
		panic(fmt.Sprintf("ledger: balance overflow crediting %s to %s/%s",
			amount.Dec(), asset.Hex(), account.Hex()))
	}
	j.stage(k, bal)
	return bal.Clone()
}

// Debit stages amount subtracted from the entry and returns the staged
// balance, or ErrInsufficientBalance without staging anything.
func (j *Journal) Debit(asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	k := Key{Asset: asset, Account: account}
	cur := j.current(k)
	if cur.Lt(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, cur.Dec(), amount.Dec())
	}
	bal := new(uint256.Int).Sub(cur, amount)
	j.stage(k, bal)
	return bal.Clone(), nil
}

// Entries returns the staged mutations in first-touch order.
func (j *Journal) Entries() []Entry {
	entries := make([]Entry, 0, len(j.keys))
	for _, k := range j.keys {
		entries = append(entries, Entry{Key: k, Amount: j.dirty[k].Clone()})
	}
	return entries
}

// Commit applies every staged mutation to the ledger.
func (j *Journal) Commit() {
	j.l.mu.Lock()
	defer j.l.mu.Unlock()
	for _, k := range j.keys {
		j.l.balances[k] = j.dirty[k]
	}
	j.dirty = nil
	j.keys = nil
}
