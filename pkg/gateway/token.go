// Package gateway provides an in-process AssetGateway for devnet and tests:
// fungible tokens with standard transfer/approve/transferFrom semantics and
// a native-value vault. A production deployment would substitute a gateway
// backed by the real token contracts and host transfer primitive.
package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrTokenTransfer is the gateway-side rejection: missing prior approval or
// insufficient wallet balance. The engine wraps it as TransferFailed.
var ErrTokenTransfer = errors.New("token transfer rejected")

type allowanceKey struct {
	Owner   common.Address
	Spender common.Address
}

// Token is one fungible token type: balances plus allowances.
type Token struct {
	mu         sync.RWMutex
	address    common.Address
	symbol     string
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewToken mints the full supply to the given owner.
func NewToken(address common.Address, symbol string, owner common.Address, supply *uint256.Int) *Token {
	t := &Token{
		address:    address,
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
	t.balances[owner] = supply.Clone()
	return t
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[allowanceKey{Owner: owner, Spender: spender}]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// Approve authorizes spender to pull up to amount from owner's wallet.
// Replaces any prior allowance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount.Clone()
}

// Transfer moves amount from one wallet to another.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from owner's wallet on behalf of spender,
// consuming allowance. Fails if the allowance does not cover the amount.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := allowanceKey{Owner: from, Spender: spender}
	allowance, ok := t.allowances[k]
	if !ok || allowance.Lt(amount) {
		return fmt.Errorf("%w: allowance of %s for %s does not cover %s %s",
			ErrTokenTransfer, from.Hex(), spender.Hex(), amount.Dec(), t.symbol)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[k] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	fromBal, ok := t.balances[from]
	if !ok || fromBal.Lt(amount) {
		have := uint256.NewInt(0)
		if ok {
			have = fromBal
		}
		return fmt.Errorf("%w: %s has %s %s, needs %s",
			ErrTokenTransfer, from.Hex(), have.Dec(), t.symbol, amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(fromBal, amount)

	toBal, ok := t.balances[to]
	if !ok {
		toBal = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		panic(fmt.Sprintf("gateway: token %s balance overflow for %s", t.symbol, to.Hex()))
	}
	t.balances[to] = sum
	return nil
}
