// Package client implements the conversational client for the KASRA agent
// service: sending user messages, decoding agent replies, and handling the
// payment-challenge (HTTP 402) retry protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kasralabs/kasra/service/payment"
)

// Sentinel errors surfaced by the send path.
var (
	// ErrNoSigner is returned when pay-and-retry is requested but no signing
	// capability is configured.
	ErrNoSigner = errors.New("no signing capability configured")

	// ErrPaymentRejected is returned when the retried request was challenged
	// again. The retry is never repeated.
	ErrPaymentRejected = errors.New("payment authorization rejected")

	// ErrSendInFlight is returned when a conversation already has a send
	// pending.
	ErrSendInFlight = errors.New("a send is already in flight")

	// ErrNoPendingChallenge is returned when pay-and-retry or dismissal is
	// requested but no challenge is outstanding.
	ErrNoPendingChallenge = errors.New("no pending payment challenge")
)

// Challenge describes a payment-required response to a send. It is transient:
// consumed by a successful retry or by explicit dismissal, never persisted.
type Challenge struct {
	// Details is the human-readable challenge description, read from
	// WWW-Authenticate or the X-Payment-Required fallback.
	Details string

	// RequestID correlates the challenge with the retried request.
	RequestID string

	// LastMessage is the original outbound text, retained for the retry.
	LastMessage string

	// Requirements is the machine-readable payment requirements from the 402
	// body, when the server provided them.
	Requirements *payment.Requirements
}

// PaymentRequiredError wraps a challenge so callers can detect it with
// errors.As and render an actionable pay/dismiss affordance.
type PaymentRequiredError struct {
	Challenge *Challenge
}

func (e *PaymentRequiredError) Error() string {
	if e.Challenge != nil && e.Challenge.Details != "" {
		return fmt.Sprintf("payment required: %s", e.Challenge.Details)
	}
	return "payment required"
}

// Client is the HTTP client for the KASRA agent service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	signer       payment.Signer
	domain       payment.Domain
	requirements *payment.Requirements
	authValidity time.Duration
}

// NewClient creates a new agent service client. A nil httpClient gets a
// 30-second timeout; a nil logger discards.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		authValidity: time.Hour,
	}
}

// WithSigner attaches a signing capability and the EIP-712 domain to sign
// against. Without a signer, payment challenges can be received but not paid.
func (c *Client) WithSigner(signer payment.Signer, domain payment.Domain) *Client {
	c.signer = signer
	c.domain = domain
	return c
}

// WithDefaultRequirements sets the payment requirements to use when a 402
// response carries none in its body.
func (c *Client) WithDefaultRequirements(req *payment.Requirements) *Client {
	c.requirements = req
	return c
}

// Send posts a user message to the agent endpoint and returns the decoded
// reply. A payment-required response is returned as a *PaymentRequiredError;
// use Start/PayAndRetry on a SendState for the full challenge lifecycle.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	return c.send(ctx, message, "")
}

// send performs one request, optionally with a payment authorization header.
func (c *Client) send(ctx context.Context, message, paymentHeader string) (string, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if paymentHeader != "" {
		req.Header.Set(payment.HeaderPayment, paymentHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		ch := challengeFromResponse(resp, message)
		c.logger.Debug("payment challenge received",
			"details", ch.Details,
			"request_id", ch.RequestID,
		)
		return "", &PaymentRequiredError{Challenge: ch}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.parseErrorResponse(resp.StatusCode, respBody)
	}

	reply, err := decodeReply(respBody)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// replyFields is the preference order for selecting the reply out of a
// structured response body. The upstream agent's response shape is only
// loosely specified, so decoding is deliberately permissive.
var replyFields = []string{"reply", "message", "text", "result", "output", "content"}

// decodeReply extracts the assistant reply from a response body: a bare JSON
// string is used directly; for an object, the first string-valued field in
// preference order wins; any other valid JSON is used verbatim as text.
func decodeReply(body []byte) (string, error) {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, field := range replyFields {
			if v, ok := obj[field].(string); ok {
				return v, nil
			}
		}
		return string(body), nil
	}

	var anything any
	if err := json.Unmarshal(body, &anything); err != nil {
		return "", fmt.Errorf("response is not valid JSON: %w", err)
	}
	return string(body), nil
}

// challengeFromResponse builds a Challenge from a 402 response. Absent
// headers leave the corresponding fields empty; the challenge state is
// entered regardless.
func challengeFromResponse(resp *http.Response, message string) *Challenge {
	details := resp.Header.Get("WWW-Authenticate")
	if details == "" {
		details = resp.Header.Get(payment.HeaderChallenge)
	}

	ch := &Challenge{
		Details:     details,
		RequestID:   resp.Header.Get(payment.HeaderRequestID),
		LastMessage: message,
	}

	var body struct {
		Requirements *payment.Requirements `json:"payment_requirements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		ch.Requirements = body.Requirements
	}
	return ch
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", statusCode, string(body))
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
