// Package payment implements the payment-authorization protocol used to
// settle HTTP 402 challenges. An authorization is an EIP-3009
// TransferWithAuthorization message, signed as EIP-712 typed data, carried on
// the retried request in the X-Payment header as base64-encoded JSON.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Header names for the payment-challenge protocol.
const (
	// HeaderPayment carries the signed authorization on a retried request.
	HeaderPayment = "X-Payment"

	// HeaderChallenge is the vendor fallback for the challenge description;
	// WWW-Authenticate is the primary channel.
	HeaderChallenge = "X-Payment-Required"

	// HeaderRequestID correlates a challenge with its retried request.
	HeaderRequestID = "X-Request-Id"
)

// Payload is the decoded contents of the X-Payment header.
type Payload struct {
	Signature     string         `json:"signature"`
	Authorization *Authorization `json:"authorization"`
}

// Authorization carries the EIP-3009 transferWithAuthorization parameters.
// Value is a decimal string in the token's smallest unit; Nonce is a
// 0x-prefixed 32-byte hex string unique per authorization.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Requirements describes what a payment authorization must contain for the
// server to accept it. It is returned in the JSON body of a 402 response so
// the client can build a matching authorization.
type Requirements struct {
	Scheme      string `json:"scheme"`  // currently always "exact"
	Network     string `json:"network"` // e.g. "base-sepolia"
	PayTo       string `json:"pay_to"`
	Asset       string `json:"asset"`  // token contract address
	Amount      int64  `json:"amount"` // smallest unit
	Description string `json:"description,omitempty"`
}

// SchemeExact is the only payment scheme currently supported: an exact-amount
// token transfer authorization.
const SchemeExact = "exact"

// NewAuthorization builds an unsigned EIP-3009 authorization from the payer
// address and the server's requirements, valid from now for the given window.
func NewAuthorization(from common.Address, req *Requirements, validity time.Duration) (*Authorization, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization nonce: %w", err)
	}
	now := time.Now()
	return &Authorization{
		From:        from.Hex(),
		To:          req.PayTo,
		Value:       strconv.FormatInt(req.Amount, 10),
		ValidAfter:  0,
		ValidBefore: now.Add(validity).Unix(),
		Nonce:       nonce,
	}, nil
}

// EncodeHeader serializes a payload for the X-Payment header.
func EncodeHeader(p *Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeHeader parses an X-Payment header value back into a payload.
func DecodeHeader(header string) (*Payload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}
	if p.Authorization == nil {
		return nil, fmt.Errorf("payment header is missing the authorization")
	}
	return &p, nil
}

// validate checks the structural fields of an authorization before any
// signature work is attempted.
func (a *Authorization) validate() error {
	if !common.IsHexAddress(a.From) {
		return fmt.Errorf("authorization from %q is not an address", a.From)
	}
	if !common.IsHexAddress(a.To) {
		return fmt.Errorf("authorization to %q is not an address", a.To)
	}
	if _, err := strconv.ParseInt(a.Value, 10, 64); err != nil {
		return fmt.Errorf("authorization value %q is not a decimal amount: %w", a.Value, err)
	}
	raw, err := hexutil.Decode(a.Nonce)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("authorization nonce %q is not 32 bytes of hex", a.Nonce)
	}
	return nil
}
