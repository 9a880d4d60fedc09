package payment

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Gate enforces payment authorization on protected endpoints. It holds the
// requirements advertised in 402 responses and a consumed-nonce set for
// replay protection. Nonces are kept in memory; an authorization is only
// valid within its own validity window, so the set is pruned as entries
// expire.
type Gate struct {
	requirements Requirements
	domain       Domain

	mu   sync.Mutex
	seen map[string]int64 // nonce -> validBefore, for pruning
}

// NewGate creates a payment gate for the given requirements and signing domain.
func NewGate(req Requirements, domain Domain) *Gate {
	return &Gate{
		requirements: req,
		domain:       domain,
		seen:         make(map[string]int64),
	}
}

// Requirements returns the requirements to advertise in a 402 response.
func (g *Gate) Requirements() *Requirements {
	req := g.requirements
	return &req
}

// Verify decodes and checks an X-Payment header value. It returns the payer
// address when the authorization is acceptable: signature valid, paid to the
// right account, amount sufficient, inside the validity window, nonce unseen.
func (g *Gate) Verify(header string) (common.Address, error) {
	p, err := DecodeHeader(header)
	if err != nil {
		return common.Address{}, err
	}

	payer, err := RecoverSigner(p, g.domain)
	if err != nil {
		return common.Address{}, err
	}

	auth := p.Authorization
	if common.HexToAddress(auth.To) != common.HexToAddress(g.requirements.PayTo) {
		return common.Address{}, fmt.Errorf("authorization pays %s, expected %s", auth.To, g.requirements.PayTo)
	}

	value, err := strconv.ParseInt(auth.Value, 10, 64)
	if err != nil || value < g.requirements.Amount {
		return common.Address{}, fmt.Errorf("authorization value %s below required %d", auth.Value, g.requirements.Amount)
	}

	now := time.Now()
	if !auth.withinValidityWindow(now) {
		return common.Address{}, fmt.Errorf("authorization is outside its validity window")
	}

	if err := g.consumeNonce(auth.Nonce, auth.ValidBefore, now); err != nil {
		return common.Address{}, err
	}

	return payer, nil
}

// consumeNonce marks a nonce as used, rejecting replays. Expired entries are
// pruned on the way through.
func (g *Gate) consumeNonce(nonce string, validBefore int64, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	unix := now.Unix()
	for n, exp := range g.seen {
		if exp < unix {
			delete(g.seen, n)
		}
	}

	if _, used := g.seen[nonce]; used {
		return fmt.Errorf("authorization nonce already used")
	}
	g.seen[nonce] = validBefore
	return nil
}
