package gateway

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Local implements exchange.AssetGateway in-process. Native value lives in
// per-wallet vault entries plus one custody pool owned by the exchange;
// tokens are Token instances registered by address, with custody held at the
// custody address. Pull transfers require the standard prior approval.
type Local struct {
	mu      sync.RWMutex
	custody common.Address
	native  map[common.Address]*uint256.Int
	pool    *uint256.Int // native value held in custody
	tokens  map[common.Address]*Token
}

// NewLocal creates a gateway whose custody account is the given address.
func NewLocal(custody common.Address) *Local {
	return &Local{
		custody: custody,
		native:  make(map[common.Address]*uint256.Int),
		pool:    uint256.NewInt(0),
		tokens:  make(map[common.Address]*Token),
	}
}

// FundNative credits a wallet's external native balance. Devnet genesis.
func (g *Local) FundNative(account common.Address, amount *uint256.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bal, ok := g.native[account]
	if !ok {
		bal = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		panic(fmt.Sprintf("gateway: native balance overflow for %s", account.Hex()))
	}
	g.native[account] = sum
}

// NativeBalance returns a wallet's external native balance.
func (g *Local) NativeBalance(account common.Address) *uint256.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if bal, ok := g.native[account]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// CustodyPool returns the native value currently held in custody.
func (g *Local) CustodyPool() *uint256.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pool.Clone()
}

// CreateToken registers a new token with its supply minted to owner.
func (g *Local) CreateToken(address common.Address, symbol string, owner common.Address, supply *uint256.Int) (*Token, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("token address cannot be the zero address")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tokens[address]; exists {
		return nil, fmt.Errorf("token already registered at %s", address.Hex())
	}
	t := NewToken(address, symbol, owner, supply)
	g.tokens[address] = t
	return t, nil
}

// Token returns a registered token, or nil.
func (g *Local) Token(address common.Address) *Token {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tokens[address]
}

// NativePull moves native value from a wallet into the custody pool.
func (g *Local) NativePull(from common.Address, amount *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	bal, ok := g.native[from]
	if !ok || bal.Lt(amount) {
		have := uint256.NewInt(0)
		if ok {
			have = bal
		}
		return fmt.Errorf("%w: wallet %s has %s native, needs %s",
			ErrTokenTransfer, from.Hex(), have.Dec(), amount.Dec())
	}
	g.native[from] = new(uint256.Int).Sub(bal, amount)
	g.pool.Add(g.pool, amount)
	return nil
}

// NativePush moves native value from the custody pool back to a wallet.
func (g *Local) NativePush(to common.Address, amount *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool.Lt(amount) {
		return fmt.Errorf("%w: custody pool has %s native, needs %s",
			ErrTokenTransfer, g.pool.Dec(), amount.Dec())
	}
	g.pool.Sub(g.pool, amount)

	bal, ok := g.native[to]
	if !ok {
		bal = uint256.NewInt(0)
	}
	g.native[to] = new(uint256.Int).Add(bal, amount)
	return nil
}

// TokenPull moves tokens from a wallet into custody via transferFrom; the
// wallet must have approved the custody account beforehand.
func (g *Local) TokenPull(token, from common.Address, amount *uint256.Int) error {
	t := g.Token(token)
	if t == nil {
		return fmt.Errorf("%w: no token at %s", ErrTokenTransfer, token.Hex())
	}
	return t.TransferFrom(g.custody, from, g.custody, amount)
}

// TokenPush moves tokens from custody back to a wallet.
func (g *Local) TokenPush(token, to common.Address, amount *uint256.Int) error {
	t := g.Token(token)
	if t == nil {
		return fmt.Errorf("%w: no token at %s", ErrTokenTransfer, token.Hex())
	}
	return t.Transfer(g.custody, to, amount)
}
