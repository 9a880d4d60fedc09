package events

import (
	"time"

	"github.com/kasralabs/kasra/service/summary"
)

// ProposalEvent is published when the server extracts a transaction
// proposal from an assistant reply. Published to "kasra.proposals".
type ProposalEvent struct {
	// Proposal details
	RecipientLabel   string `json:"recipient_label"`
	RecipientAddress string `json:"recipient_address"`
	Amount           int64  `json:"amount"`
	Category         string `json:"category"`

	// Correlation
	RequestID string `json:"request_id,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromSummary converts an extracted transaction summary into a ProposalEvent
// for publishing.
func FromSummary(s *summary.Summary, requestID string) *ProposalEvent {
	return &ProposalEvent{
		RecipientLabel:   s.RecipientLabel,
		RecipientAddress: s.RecipientAddress.Hex(),
		Amount:           s.Amount,
		Category:         s.Category,
		RequestID:        requestID,
		PublishedAt:      time.Now().UTC(),
	}
}

// PaymentEvent is published when the server accepts a signed payment
// authorization on the chat endpoint. Published to "kasra.payments".
type PaymentEvent struct {
	// Authorization details
	Payer  string `json:"payer"`
	PayTo  string `json:"pay_to"`
	Amount int64  `json:"amount"`
	Asset  string `json:"asset"`

	// Correlation
	RequestID string `json:"request_id,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}
