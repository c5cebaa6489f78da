package gateway

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	tokenAddr = common.HexToAddress("0x7700000000000000000000000000000000000000")
	alice     = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob       = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	custody   = common.HexToAddress("0xCC00000000000000000000000000000000000000")
)

// TestNewTokenMintsSupplyToOwner checks initial distribution.
func TestNewTokenMintsSupplyToOwner(t *testing.T) {
	tok := NewToken(tokenAddr, "TST", alice, uint256.NewInt(1000))

	if bal := tok.BalanceOf(alice); !bal.Eq(uint256.NewInt(1000)) {
		t.Errorf("owner balance = %s, want 1000", bal.Dec())
	}
	if bal := tok.BalanceOf(bob); !bal.IsZero() {
		t.Errorf("bob balance = %s, want 0", bal.Dec())
	}
	if tok.Address() != tokenAddr || tok.Symbol() != "TST" {
		t.Errorf("identity = %s/%s", tok.Address().Hex(), tok.Symbol())
	}
}

// TestTransfer tests direct wallet-to-wallet movement.
func TestTransfer(t *testing.T) {
	tok := NewToken(tokenAddr, "TST", alice, uint256.NewInt(1000))

	if err := tok.Transfer(alice, bob, uint256.NewInt(400)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if bal := tok.BalanceOf(alice); !bal.Eq(uint256.NewInt(600)) {
		t.Errorf("alice = %s, want 600", bal.Dec())
	}
	if bal := tok.BalanceOf(bob); !bal.Eq(uint256.NewInt(400)) {
		t.Errorf("bob = %s, want 400", bal.Dec())
	}

	// Over-transfer fails and changes nothing
	err := tok.Transfer(alice, bob, uint256.NewInt(601))
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("err = %v, want ErrTokenTransfer", err)
	}
	if bal := tok.BalanceOf(alice); !bal.Eq(uint256.NewInt(600)) {
		t.Errorf("alice changed on failed transfer: %s", bal.Dec())
	}
}

// TestTransferFromRequiresAllowance tests the approval gate.
func TestTransferFromRequiresAllowance(t *testing.T) {
	tok := NewToken(tokenAddr, "TST", alice, uint256.NewInt(1000))

	// No approval yet
	err := tok.TransferFrom(custody, alice, custody, uint256.NewInt(100))
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("err = %v, want ErrTokenTransfer", err)
	}

	tok.Approve(alice, custody, uint256.NewInt(300))
	if a := tok.Allowance(alice, custody); !a.Eq(uint256.NewInt(300)) {
		t.Errorf("allowance = %s, want 300", a.Dec())
	}

	if err := tok.TransferFrom(custody, alice, custody, uint256.NewInt(200)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	if bal := tok.BalanceOf(custody); !bal.Eq(uint256.NewInt(200)) {
		t.Errorf("custody = %s, want 200", bal.Dec())
	}

	// Allowance consumed down to 100, a 101 pull must fail
	if a := tok.Allowance(alice, custody); !a.Eq(uint256.NewInt(100)) {
		t.Errorf("remaining allowance = %s, want 100", a.Dec())
	}
	err = tok.TransferFrom(custody, alice, custody, uint256.NewInt(101))
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("err = %v, want ErrTokenTransfer", err)
	}
}

// TestApproveReplacesAllowance checks approvals are not additive.
func TestApproveReplacesAllowance(t *testing.T) {
	tok := NewToken(tokenAddr, "TST", alice, uint256.NewInt(1000))

	tok.Approve(alice, custody, uint256.NewInt(100))
	tok.Approve(alice, custody, uint256.NewInt(50))
	if a := tok.Allowance(alice, custody); !a.Eq(uint256.NewInt(50)) {
		t.Errorf("allowance = %s, want 50", a.Dec())
	}
}
