package payment

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the signing capability used to authorize payments. Production
// deployments back this with a user wallet; SignTypedData may block on
// out-of-band user approval and may return a rejection.
type Signer interface {
	// Address returns the account the signatures will verify against.
	Address() common.Address

	// SignTypedData returns a 65-byte 0x-prefixed signature over the EIP-712
	// digest of the typed data.
	SignTypedData(td apitypes.TypedData) (string, error)
}

// LocalSigner signs with an in-process secp256k1 private key. Intended for
// the CLI and tests; it never prompts.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner parses a hex-encoded private key (with or without 0x prefix).
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewLocalSignerFromKey wraps an existing key, mainly for tests.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address implements Signer.
func (s *LocalSigner) Address() common.Address {
	return s.addr
}

// SignTypedData implements Signer. The recovery id is shifted to the
// Ethereum convention (27/28).
func (s *LocalSigner) SignTypedData(td apitypes.TypedData) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
