package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasralabs/kasra/service/agent"
	"github.com/kasralabs/kasra/service/config"
	"github.com/kasralabs/kasra/service/events"
	"github.com/kasralabs/kasra/service/metrics"
	"github.com/kasralabs/kasra/service/payment"
	"github.com/kasralabs/kasra/service/summary"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a chat message

	// apologyReply is returned with a 200 status when the model call fails,
	// so the conversation surface degrades gracefully instead of erroring.
	apologyReply = "Maaf, sistem sedang bermasalah. Silakan coba lagi beberapa saat lagi."
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat returns the handler for the chat endpoint.
// POST /api/v1/chat
//
// When a payment gate is configured, requests without a valid X-Payment
// header receive a 402 challenge carrying the payment requirements. A
// request bearing a valid signed authorization is served normally.
func handleChat(ag agent.Agent, extractor *summary.Extractor, gate *payment.Gate, publisher events.Publisher, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("invalid chat request body", "request_id", requestID, "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		message := strings.TrimSpace(req.Message)
		if message == "" {
			writeError(w, "message is required", http.StatusBadRequest)
			return
		}

		if gate != nil {
			header := r.Header.Get(payment.HeaderPayment)
			if header == "" {
				if m != nil {
					m.RecordPaymentChallenge("missing_payment")
				}
				writeChallenge(w, gate, requestID, "payment required")
				return
			}

			payer, err := gate.Verify(header)
			if err != nil {
				logger.Debug("payment verification failed",
					"request_id", requestID,
					"error", err,
				)
				if m != nil {
					m.RecordPaymentVerification("rejected")
					m.RecordPaymentChallenge("invalid_payment")
				}
				writeChallenge(w, gate, requestID, fmt.Sprintf("payment rejected: %v", err))
				return
			}

			if m != nil {
				m.RecordPaymentVerification("accepted")
			}
			logger.Info("payment accepted",
				"request_id", requestID,
				"payer", payer.Hex(),
			)

			if publisher != nil {
				payReq := gate.Requirements()
				event := &events.PaymentEvent{
					Payer:       payer.Hex(),
					PayTo:       payReq.PayTo,
					Amount:      payReq.Amount,
					Asset:       payReq.Asset,
					RequestID:   requestID,
					PublishedAt: time.Now().UTC(),
				}
				if err := publisher.PublishPayment(r.Context(), event); err != nil {
					// Publishing is best-effort; the chat still proceeds.
					logger.Error("failed to publish payment event",
						"request_id", requestID,
						"error", err,
					)
				}
			}
		}

		start := time.Now()
		reply, err := ag.Reply(r.Context(), message)
		if m != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.RecordAgentRequest(cfg.AnthropicModel, status, time.Since(start).Seconds())
		}
		if err != nil {
			logger.Error("agent reply failed", "request_id", requestID, "error", err)
			writeJSON(w, chatResponse{Reply: apologyReply}, http.StatusOK)
			return
		}

		if extractor != nil {
			if s := extractor.Extract(reply); s != nil {
				logger.Info("transaction proposal extracted",
					"request_id", requestID,
					"recipient", s.RecipientAddress.Hex(),
					"amount", s.Amount,
					"category", s.Category,
				)
				if m != nil {
					m.RecordProposalExtracted(s.Category)
				}
				if publisher != nil {
					if err := publisher.PublishProposal(r.Context(), events.FromSummary(s, requestID)); err != nil {
						logger.Error("failed to publish proposal event",
							"request_id", requestID,
							"error", err,
						)
					}
				}
			}
		}

		writeJSON(w, chatResponse{Reply: reply}, http.StatusOK)
	})
}

// handlePaymentRequirements returns the handler exposing the current
// payment requirements so clients can inspect the fee before chatting.
// GET /api/v1/payment-requirements
func handlePaymentRequirements(gate *payment.Gate, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, gate.Requirements(), http.StatusOK)
	})
}

// writeChallenge writes a 402 response carrying the payment requirements.
// The human-readable detail goes to WWW-Authenticate with X-Payment-Required
// as a vendor fallback; X-Request-Id correlates the retried request.
func writeChallenge(w http.ResponseWriter, gate *payment.Gate, requestID, detail string) {
	req := gate.Requirements()

	challenge := fmt.Sprintf("Payment scheme=%q network=%q amount=%d asset=%q",
		req.Scheme, req.Network, req.Amount, req.Asset)
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set(payment.HeaderChallenge, challenge)
	w.Header().Set(payment.HeaderRequestID, requestID)

	writeJSON(w, map[string]any{
		"error":                detail,
		"payment_requirements": req,
	}, http.StatusPaymentRequired)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
