package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasralabs/kasra/service/payment"
)

func testDomain() payment.Domain {
	return payment.Domain{
		Name:              "IDRX",
		Version:           "1",
		ChainID:           84532,
		VerifyingContract: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func testRequirements() *payment.Requirements {
	return &payment.Requirements{
		Scheme:  payment.SchemeExact,
		Network: "base-sepolia",
		PayTo:   "0x3333333333333333333333333333333333333333",
		Asset:   "0x2222222222222222222222222222222222222222",
		Amount:  1_000_000,
	}
}

func testSigner(t *testing.T) payment.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return payment.NewLocalSignerFromKey(key)
}

func TestSend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)
		assert.Equal(t, "cek saldo", body["message"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": "Saldo Anda Rp 500.000."})
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	reply, err := cl.Send(context.Background(), "cek saldo")
	require.NoError(t, err)
	assert.Equal(t, "Saldo Anda Rp 500.000.", reply)
}

func TestSend_ReplyDecoding(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bare string", `"just text"`, "just text"},
		{"reply field", `{"reply":"a"}`, "a"},
		{"message field", `{"message":"b"}`, "b"},
		{"preference order", `{"text":"c","reply":"a"}`, "a"},
		{"skips non-string candidates", `{"reply":42,"text":"c"}`, "c"},
		{"no recognized field", `{"status":1}`, `{"status":1}`},
		{"non-object json", `[1,2]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cl := NewClient(server.URL, nil, nil)
			reply, err := cl.Send(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestSend_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	_, err := cl.Send(context.Background(), "hi")
	require.Error(t, err)
}

func TestSend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "message is required"})
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	_, err := cl.Send(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message is required")
}

func TestSend_PaymentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", "needs-payment")
		w.Header().Set(payment.HeaderRequestID, "req-123")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	state := cl.StartSend(context.Background(), "transfer 50rb ke Budi")

	require.Equal(t, PhaseChallengeReceived, state.Phase())
	ch := state.Challenge()
	require.NotNil(t, ch)
	assert.Equal(t, "needs-payment", ch.Details)
	assert.Equal(t, "req-123", ch.RequestID)
	assert.Equal(t, "transfer 50rb ke Budi", ch.LastMessage)
}

func TestSend_PaymentRequired_FallbackHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(payment.HeaderChallenge, "vendor challenge")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	state := cl.StartSend(context.Background(), "hi")
	require.Equal(t, PhaseChallengeReceived, state.Phase())
	assert.Equal(t, "vendor challenge", state.Challenge().Details)
}

func TestSend_PaymentRequired_NoHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	state := cl.StartSend(context.Background(), "hi")
	require.Equal(t, PhaseChallengeReceived, state.Phase())
	assert.Empty(t, state.Challenge().Details)
	assert.Empty(t, state.Challenge().RequestID)
}

func TestPayAndRetry_NoSigner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	state := cl.StartSend(context.Background(), "hi")
	require.Equal(t, PhaseChallengeReceived, state.Phase())

	err := state.PayAndRetry(context.Background(), cl)
	require.ErrorIs(t, err, ErrNoSigner)

	// The refusal leaves the challenge actionable.
	assert.Equal(t, PhaseChallengeReceived, state.Phase())
	assert.NotNil(t, state.Challenge())
}

func TestPayAndRetry_Success(t *testing.T) {
	var sawPayment string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get(payment.HeaderPayment); h != "" {
			sawPayment = h
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"reply": "Transfer siap."})
			return
		}
		w.Header().Set("WWW-Authenticate", "needs-payment")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	signer := testSigner(t)
	cl := NewClient(server.URL, nil, nil).
		WithSigner(signer, testDomain()).
		WithDefaultRequirements(testRequirements())

	state := cl.StartSend(context.Background(), "transfer 1jt")
	require.Equal(t, PhaseChallengeReceived, state.Phase())

	err := state.PayAndRetry(context.Background(), cl)
	require.NoError(t, err)
	assert.Equal(t, PhaseFulfilled, state.Phase())
	assert.Equal(t, "Transfer siap.", state.Reply())
	assert.Nil(t, state.Challenge())

	// The retried request carried a verifiable authorization.
	require.NotEmpty(t, sawPayment)
	payload, err := payment.DecodeHeader(sawPayment)
	require.NoError(t, err)
	recovered, err := payment.RecoverSigner(payload, testDomain())
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestPayAndRetry_RequirementsFromChallengeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(payment.HeaderPayment) != "" {
			payload, err := payment.DecodeHeader(r.Header.Get(payment.HeaderPayment))
			require.NoError(t, err)
			assert.Equal(t, "0x5555555555555555555555555555555555555555", payload.Authorization.To)
			assert.Equal(t, "2000000", payload.Authorization.Value)

			json.NewEncoder(w).Encode(map[string]string{"reply": "ok"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "payment required",
			"payment_requirements": map[string]any{
				"scheme":  "exact",
				"network": "base-sepolia",
				"pay_to":  "0x5555555555555555555555555555555555555555",
				"asset":   "0x2222222222222222222222222222222222222222",
				"amount":  2_000_000,
			},
		})
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil).WithSigner(testSigner(t), testDomain())

	state := cl.StartSend(context.Background(), "transfer 2jt")
	require.Equal(t, PhaseChallengeReceived, state.Phase())
	require.NotNil(t, state.Challenge().Requirements)

	require.NoError(t, state.PayAndRetry(context.Background(), cl))
	assert.Equal(t, PhaseFulfilled, state.Phase())
}

// A second 402 on the retried request is terminal; the client never loops.
func TestPayAndRetry_SecondChallengeIsTerminal(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("WWW-Authenticate", "still not paid")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil).
		WithSigner(testSigner(t), testDomain()).
		WithDefaultRequirements(testRequirements())

	state := cl.StartSend(context.Background(), "hi")
	require.Equal(t, PhaseChallengeReceived, state.Phase())

	err := state.PayAndRetry(context.Background(), cl)
	require.ErrorIs(t, err, ErrPaymentRejected)
	assert.Equal(t, PhaseFailed, state.Phase())
	assert.Equal(t, 2, requests)

	// Further retries are refused outright.
	err = state.PayAndRetry(context.Background(), cl)
	require.Error(t, err)
	assert.Equal(t, 2, requests)
}

func TestDismiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	cl := NewClient(server.URL, nil, nil)
	state := cl.StartSend(context.Background(), "hi")
	require.Equal(t, PhaseChallengeReceived, state.Phase())

	state.Dismiss()
	assert.Equal(t, PhaseFailed, state.Phase())
	assert.Nil(t, state.Challenge())

	var paymentErr *PaymentRequiredError
	require.ErrorAs(t, state.Err(), &paymentErr)
}
