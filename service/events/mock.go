package events

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu            sync.RWMutex
	proposals     []*ProposalEvent
	payments      []*PaymentEvent
	proposalError error
	paymentError  error
	closed        bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		proposals: make([]*ProposalEvent, 0),
		payments:  make([]*PaymentEvent, 0),
	}
}

// PublishProposal records the event and returns any configured error.
func (m *MockPublisher) PublishProposal(ctx context.Context, event *ProposalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proposalError != nil {
		return m.proposalError
	}

	m.proposals = append(m.proposals, event)
	return nil
}

// PublishPayment records the event and returns any configured error.
func (m *MockPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paymentError != nil {
		return m.paymentError
	}

	m.payments = append(m.payments, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Proposals returns all published proposal events (for testing).
func (m *MockPublisher) Proposals() []*ProposalEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	out := make([]*ProposalEvent, len(m.proposals))
	copy(out, m.proposals)
	return out
}

// Payments returns all published payment events (for testing).
func (m *MockPublisher) Payments() []*PaymentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*PaymentEvent, len(m.payments))
	copy(out, m.payments)
	return out
}

// SetProposalError configures the mock to return an error on PublishProposal.
func (m *MockPublisher) SetProposalError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposalError = err
}

// SetPaymentError configures the mock to return an error on PublishPayment.
func (m *MockPublisher) SetPaymentError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentError = err
}

// Reset clears all recorded events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = make([]*ProposalEvent, 0)
	m.payments = make([]*PaymentEvent, 0)
	m.proposalError = nil
	m.paymentError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
