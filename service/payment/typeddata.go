package payment

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain identifies the EIP-712 signing domain: the token contract the
// authorization will be presented to.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// transferWithAuthorizationTypes is the EIP-712 type schema for EIP-3009.
var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// TypedData assembles the EIP-712 structure for an authorization. The same
// structure is used on both sides: the client signs its hash, the server
// recomputes it to recover the signer.
func TypedData(auth *Authorization, domain Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           gethmath.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  strconv.FormatInt(auth.ValidAfter, 10),
			"validBefore": strconv.FormatInt(auth.ValidBefore, 10),
			"nonce":       auth.Nonce,
		},
	}
}

// hashAuthorization computes the EIP-712 digest a signer commits to.
func hashAuthorization(auth *Authorization, domain Domain) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(auth, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// SignAuthorization obtains a typed-data signature over the authorization
// from the signing capability and wraps both into a header payload.
func SignAuthorization(auth *Authorization, domain Domain, signer Signer) (*Payload, error) {
	if err := auth.validate(); err != nil {
		return nil, err
	}
	sig, err := signer.SignTypedData(TypedData(auth, domain))
	if err != nil {
		return nil, fmt.Errorf("signing rejected: %w", err)
	}
	return &Payload{Signature: sig, Authorization: auth}, nil
}

// RecoverSigner verifies the payload signature against the typed-data digest
// and returns the recovered signer address. It does not check that the
// authorization satisfies any particular requirements; see Gate.Verify.
func RecoverSigner(p *Payload, domain Domain) (common.Address, error) {
	if err := p.Authorization.validate(); err != nil {
		return common.Address{}, err
	}

	sig, err := hexutil.Decode(p.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not valid hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// Accept both raw (0/1) and Ethereum-style (27/28) recovery ids.
	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	hash, err := hashAuthorization(p.Authorization, domain)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(hash, recoverable)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(p.Authorization.From) {
		return common.Address{}, fmt.Errorf("signature does not match authorization from address")
	}
	return recovered, nil
}

// withinValidityWindow reports whether the authorization is usable at t.
func (a *Authorization) withinValidityWindow(t time.Time) bool {
	unix := t.Unix()
	return unix > a.ValidAfter && unix < a.ValidBefore
}

// newNonce returns a fresh 32-byte random nonce as 0x-prefixed hex.
func newNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hexutil.Encode(b[:]), nil
}
