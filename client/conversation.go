package client

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/kasralabs/kasra/service/summary"
	"github.com/kasralabs/kasra/service/thread"
)

// ApologyMessage is appended as the agent reply when a send fails in a
// recoverable way. Matches the production deployment's tone and language.
const ApologyMessage = "Maaf, terjadi kendala saat memproses permintaan. Coba lagi sebentar."

// Notifier surfaces transient, non-fatal notices to the user (toasts).
type Notifier interface {
	Notify(message string)
}

// ProposalHandler receives the transaction summary extracted from an agent
// reply, for rendering a confirmation/sign affordance. The conversation does
// not interpret or act on the summary beyond producing it.
type ProposalHandler interface {
	HandleProposal(msg thread.Message, s *summary.Summary)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// ProposalHandlerFunc adapts a function to the ProposalHandler interface.
type ProposalHandlerFunc func(msg thread.Message, s *summary.Summary)

func (f ProposalHandlerFunc) HandleProposal(msg thread.Message, s *summary.Summary) { f(msg, s) }

// Conversation owns the per-message send lifecycle for one chat thread:
// send, optional payment challenge and retry, reply normalization, and
// appending to conversation state. At most one send is in flight at a time.
type Conversation struct {
	client    *Client
	threads   *thread.Manager
	threadID  string
	extractor *summary.Extractor
	notifier  Notifier
	proposals ProposalHandler
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight bool
	pending  *SendState
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithNotifier sets the transient-notification sink.
func WithNotifier(n Notifier) ConversationOption {
	return func(c *Conversation) { c.notifier = n }
}

// WithProposalHandler sets the recipient of extracted transaction summaries.
func WithProposalHandler(h ProposalHandler) ConversationOption {
	return func(c *Conversation) { c.proposals = h }
}

// WithLogger sets the conversation logger.
func WithLogger(logger *slog.Logger) ConversationOption {
	return func(c *Conversation) { c.logger = logger }
}

// NewConversation binds a client, a thread manager, and one thread id into a
// send orchestrator.
func NewConversation(cl *Client, threads *thread.Manager, threadID string, extractor *summary.Extractor, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		client:    cl,
		threads:   threads,
		threadID:  threadID,
		extractor: extractor,
		notifier:  NotifierFunc(func(string) {}),
		proposals: ProposalHandlerFunc(func(thread.Message, *summary.Summary) {}),
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendOptions controls a single send.
type SendOptions struct {
	// SuppressUserAppend skips appending the outbound text as a user message,
	// for callers that already appended it (e.g. quick-action buttons).
	SuppressUserAppend bool
}

// ThreadID returns the id of the thread this conversation appends to.
func (c *Conversation) ThreadID() string { return c.threadID }

// PendingChallenge returns the send state holding an unresolved payment
// challenge, if one exists.
func (c *Conversation) PendingChallenge() *SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Send dispatches a user message and produces exactly one terminal outcome:
// an appended agent reply, a pending payment challenge, or a recovered
// failure (apology message plus notification). Transport failures never
// break the conversation; the only error returned is ErrSendInFlight.
func (c *Conversation) Send(ctx context.Context, text string, opts SendOptions) (*SendState, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if !opts.SuppressUserAppend {
		c.append(ctx, thread.NewMessage(thread.RoleUser, text))
	}

	state := c.client.StartSend(ctx, text)
	switch state.Phase() {
	case PhaseFulfilled:
		c.acceptReply(ctx, state.Reply())

	case PhaseChallengeReceived:
		c.mu.Lock()
		c.pending = state
		c.mu.Unlock()
		c.logger.Info("send challenged, awaiting user action",
			"request_id", state.Challenge().RequestID,
		)

	case PhaseFailed:
		c.recoverFailure(ctx, state.Err())
	}
	return state, nil
}

// PayAndRetry resolves the pending payment challenge on explicit user action.
// A successful retry appends the reply; a second challenge or signer
// unavailability is surfaced to the caller as an actionable error. The retry
// is an outbound send and holds the same single-send slot as Send.
func (c *Conversation) PayAndRetry(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	state := c.pending
	if state == nil {
		c.mu.Unlock()
		return ErrNoPendingChallenge
	}
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if err := state.PayAndRetry(ctx, c.client); err != nil {
		if state.Phase() == PhaseFailed {
			// Terminal: the challenge is consumed, surface and recover.
			c.mu.Lock()
			c.pending = nil
			c.mu.Unlock()
			c.recoverFailure(ctx, err)
		}
		return err
	}

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	c.acceptReply(ctx, state.Reply())
	return nil
}

// DismissChallenge discards the pending challenge without paying.
func (c *Conversation) DismissChallenge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Dismiss()
		c.pending = nil
	}
}

// acceptReply appends the agent reply and hands any extracted transaction
// summary to the proposal handler.
func (c *Conversation) acceptReply(ctx context.Context, reply string) {
	msg := thread.NewMessage(thread.RoleAgent, reply)
	c.append(ctx, msg)

	if c.extractor == nil {
		return
	}
	if s := c.extractor.Extract(reply); s != nil {
		c.logger.Info("transaction proposal extracted",
			"recipient", s.RecipientLabel,
			"amount", s.Amount,
			"category", s.Category,
		)
		c.proposals.HandleProposal(msg, s)
	}
}

// recoverFailure appends the apology reply and raises a transient
// notification. Failures are never fatal to the conversation.
func (c *Conversation) recoverFailure(ctx context.Context, err error) {
	c.logger.Error("send failed", "error", err)
	c.append(ctx, thread.NewMessage(thread.RoleAgent, ApologyMessage))
	c.notifier.Notify(err.Error())
}

func (c *Conversation) append(ctx context.Context, msg thread.Message) {
	if err := c.threads.Append(ctx, c.threadID, msg); err != nil {
		c.logger.Warn("failed to append message", "error", err)
	}
}
