package api

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Caller authentication: mutating requests carry an address and a secp256k1
// personal-sign signature over a canonical message derived from the request
// fields. The recovered address must match the claimed one; the engine then
// uses it for authorization only. With dev auth enabled the address field is
// trusted as-is.

// AuthMessage builds the canonical message for an operation. Clients must
// assemble the identical string before signing.
func AuthMessage(op string, fields ...string) string {
	parts := append([]string{"custodex/v1", op}, fields...)
	return strings.Join(parts, "|")
}

// VerifySignature recovers the signer of the personal-sign signature over
// message and checks it against address. Accepts both 0/1 and 27/28 recovery
// ids.
func VerifySignature(address common.Address, message, sigHex string) error {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}

	// Normalize recovery id (MetaMask-style signatures use 27/28)
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		sig = append([]byte{}, sig...)
		sig[crypto.RecoveryIDOffset] = v - 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("signature recovery failed: %w", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != address {
		return fmt.Errorf("signature from %s, claimed %s", recovered.Hex(), address.Hex())
	}
	return nil
}

// SignMessage produces a personal-sign signature for message. Used by
// clients and tests.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// authenticate resolves the caller address for a mutating request.
func (s *Server) authenticate(addressHex, signature, message string) (common.Address, error) {
	if !common.IsHexAddress(addressHex) {
		return common.Address{}, fmt.Errorf("invalid address: %q", addressHex)
	}
	addr := common.HexToAddress(addressHex)

	if s.devAuth {
		return addr, nil
	}
	if signature == "" {
		return common.Address{}, fmt.Errorf("missing signature")
	}
	if err := VerifySignature(addr, message, signature); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}
