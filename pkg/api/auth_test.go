package api

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// TestAuthMessageCanonical checks the message layout clients must reproduce.
func TestAuthMessageCanonical(t *testing.T) {
	got := AuthMessage("deposit-base", "1000")
	want := "custodex/v1|deposit-base|1000"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}

	got = AuthMessage("make-order", "0xA", "1", "0xB", "2")
	want = "custodex/v1|make-order|0xA|1|0xB|2"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

// TestSignAndVerify checks the personal-sign round trip.
func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	msg := AuthMessage("withdraw-base", "500")

	sig, err := SignMessage(key, msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := VerifySignature(addr, msg, sig); err != nil {
		t.Errorf("verify failed: %v", err)
	}
}

// TestVerifyRejectsWrongSigner checks recovery against a different address.
func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	msg := AuthMessage("cancel-order", "7")

	sig, err := SignMessage(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(crypto.PubkeyToAddress(other.PublicKey), msg, sig); err == nil {
		t.Error("signature verified against the wrong address")
	}
}

// TestVerifyRejectsTamperedMessage checks the signature binds the message.
func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignMessage(key, AuthMessage("withdraw-base", "500"))
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(addr, AuthMessage("withdraw-base", "5000"), sig); err == nil {
		t.Error("tampered message verified")
	}
}

// TestVerifyAcceptsLegacyRecoveryID checks 27/28-style v values.
func TestVerifyAcceptsLegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	msg := AuthMessage("fill-order", "3")

	sigHex, err := SignMessage(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		t.Fatal(err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	if err := VerifySignature(addr, msg, hexutil.Encode(sig)); err != nil {
		t.Errorf("legacy recovery id rejected: %v", err)
	}
}

// TestVerifyRejectsMalformedSignature checks length and hex validation.
func TestVerifyRejectsMalformedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	if err := VerifySignature(addr, "m", "not-hex"); err == nil {
		t.Error("non-hex signature accepted")
	}
	if err := VerifySignature(addr, "m", "0xdead"); err == nil {
		t.Error("short signature accepted")
	}
}
