// Package events publishes proposal and payment events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kasralabs/kasra/service/metrics"
)

// Publisher defines the interface for publishing application events.
type Publisher interface {
	// PublishProposal publishes an extracted transaction proposal.
	// The event is published to the subject "kasra.proposals".
	PublishProposal(ctx context.Context, event *ProposalEvent) error

	// PublishPayment publishes an accepted payment authorization.
	// The event is published to the subject "kasra.payments".
	PublishPayment(ctx context.Context, event *PaymentEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for KASRA events.
	StreamName = "KASRA"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "kasra.*"

	// SubjectProposals carries extracted transaction proposals.
	SubjectProposals = "kasra.proposals"

	// SubjectPayments carries accepted payment authorizations.
	SubjectPayments = "kasra.payments"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. m may be nil, in which
// case publish operations are not instrumented.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("kasra-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Proposal and payment events from the KASRA assistant",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishProposal publishes an extracted transaction proposal.
func (p *JetStreamPublisher) PublishProposal(ctx context.Context, event *ProposalEvent) error {
	if err := p.publish(ctx, SubjectProposals, event); err != nil {
		return fmt.Errorf("failed to publish proposal: %w", err)
	}

	p.logger.Debug("published proposal event",
		"subject", SubjectProposals,
		"recipient", event.RecipientAddress,
		"amount", event.Amount,
	)

	return nil
}

// PublishPayment publishes an accepted payment authorization.
func (p *JetStreamPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	if err := p.publish(ctx, SubjectPayments, event); err != nil {
		return fmt.Errorf("failed to publish payment: %w", err)
	}

	p.logger.Debug("published payment event",
		"subject", SubjectPayments,
		"payer", event.Payer,
		"amount", event.Amount,
	)

	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	p.recordPublish(subject, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

func (p *JetStreamPublisher) recordPublish(subject string, err error, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordEventPublish(subject, status, elapsed.Seconds())
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
