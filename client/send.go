package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kasralabs/kasra/service/payment"
)

// Phase is the tagged state of a single outbound send through the
// payment-challenge protocol. Modeling this explicitly (rather than with
// nullable flags) makes the at-most-one-retry invariant structural.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSent
	PhaseChallengeReceived
	PhaseAwaitingAuthorization
	PhaseRetried
	PhaseFulfilled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSent:
		return "sent"
	case PhaseChallengeReceived:
		return "challenge_received"
	case PhaseAwaitingAuthorization:
		return "awaiting_authorization"
	case PhaseRetried:
		return "retried"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SendState tracks one user-initiated send from dispatch to its single
// terminal outcome. Fulfilled and Failed are terminal.
type SendState struct {
	phase     Phase
	challenge *Challenge
	reply     string
	err       error
}

// Phase returns the current state.
func (s *SendState) Phase() Phase { return s.phase }

// Challenge returns the pending payment challenge, if any.
func (s *SendState) Challenge() *Challenge { return s.challenge }

// Reply returns the decoded agent reply once the send is fulfilled.
func (s *SendState) Reply() string { return s.reply }

// Err returns the terminal error once the send has failed.
func (s *SendState) Err() error { return s.err }

// StartSend dispatches a message and drives the state machine to Fulfilled,
// ChallengeReceived, or Failed.
func (c *Client) StartSend(ctx context.Context, message string) *SendState {
	s := &SendState{phase: PhaseSent}

	reply, err := c.send(ctx, message, "")
	if err != nil {
		var paymentErr *PaymentRequiredError
		if errors.As(err, &paymentErr) {
			s.phase = PhaseChallengeReceived
			s.challenge = paymentErr.Challenge
			return s
		}
		s.phase = PhaseFailed
		s.err = err
		return s
	}

	s.phase = PhaseFulfilled
	s.reply = reply
	return s
}

// PayAndRetry obtains a payment authorization from the signing capability and
// resends the original request exactly once with it attached. It may only be
// called from ChallengeReceived, and only on explicit user action: the
// signing step may block indefinitely on out-of-band wallet approval.
//
// Without a configured signer this is refused with ErrNoSigner and the state
// remains ChallengeReceived. A second 402 on the retried request is terminal:
// the state moves to Failed with ErrPaymentRejected and no further retry is
// attempted.
func (s *SendState) PayAndRetry(ctx context.Context, c *Client) error {
	if s.phase != PhaseChallengeReceived {
		return fmt.Errorf("cannot retry from state %s", s.phase)
	}
	if c.signer == nil {
		return ErrNoSigner
	}

	req := s.challenge.Requirements
	if req == nil {
		req = c.requirements
	}
	if req == nil {
		return fmt.Errorf("challenge carried no payment requirements and none are configured")
	}

	domain := c.domain
	if req.Asset != "" {
		domain.VerifyingContract = common.HexToAddress(req.Asset)
	}

	s.phase = PhaseAwaitingAuthorization

	auth, err := payment.NewAuthorization(c.signer.Address(), req, c.authValidity)
	if err != nil {
		s.phase = PhaseChallengeReceived
		return err
	}

	payload, err := payment.SignAuthorization(auth, domain, c.signer)
	if err != nil {
		// Signature rejection leaves the challenge actionable.
		s.phase = PhaseChallengeReceived
		return err
	}

	header, err := payment.EncodeHeader(payload)
	if err != nil {
		s.phase = PhaseChallengeReceived
		return err
	}

	s.phase = PhaseRetried
	reply, err := c.send(ctx, s.challenge.LastMessage, header)
	if err != nil {
		var paymentErr *PaymentRequiredError
		if errors.As(err, &paymentErr) {
			err = fmt.Errorf("%w: %s", ErrPaymentRejected, paymentErr.Error())
		}
		s.phase = PhaseFailed
		s.err = err
		s.challenge = nil
		return err
	}

	s.phase = PhaseFulfilled
	s.reply = reply
	s.challenge = nil
	return nil
}

// Dismiss discards the pending challenge, terminating the send without a
// reply.
func (s *SendState) Dismiss() {
	if s.phase != PhaseChallengeReceived {
		return
	}
	s.phase = PhaseFailed
	s.err = &PaymentRequiredError{Challenge: s.challenge}
	s.challenge = nil
}
