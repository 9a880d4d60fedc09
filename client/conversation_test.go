package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasralabs/kasra/service/payment"
	"github.com/kasralabs/kasra/service/summary"
	"github.com/kasralabs/kasra/service/thread"
)

const fallbackAddress = "0x1111111111111111111111111111111111111111"

func newTestConversation(t *testing.T, serverURL string, opts ...ConversationOption) (*Conversation, *thread.Manager) {
	t.Helper()
	ctx := context.Background()

	threads, err := thread.NewManager(ctx, thread.NewMemoryStore(), nil)
	require.NoError(t, err)
	th := threads.Create(ctx, "test thread")

	cl := NewClient(serverURL, nil, nil)
	extractor := summary.NewExtractor(summary.LocaleIndonesian, fallbackAddress)
	return NewConversation(cl, threads, th.ID, extractor, opts...), threads
}

func threadMessages(t *testing.T, threads *thread.Manager, id string) []thread.Message {
	t.Helper()
	th, ok := threads.Get(id)
	require.True(t, ok)
	return th.Messages
}

func TestConversationSend_AppendsBothSides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": "Saldo Anda Rp 500.000."})
	}))
	defer server.Close()

	conv, threads := newTestConversation(t, server.URL)
	state, err := conv.Send(context.Background(), "cek saldo", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseFulfilled, state.Phase())

	msgs := threadMessages(t, threads, conv.ThreadID())
	require.Len(t, msgs, 2)
	assert.Equal(t, thread.RoleUser, msgs[0].Role)
	assert.Equal(t, "cek saldo", msgs[0].Content)
	assert.Equal(t, thread.RoleAgent, msgs[1].Role)
	assert.Equal(t, "Saldo Anda Rp 500.000.", msgs[1].Content)
}

func TestConversationSend_SuppressUserAppend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": "ok"})
	}))
	defer server.Close()

	conv, threads := newTestConversation(t, server.URL)
	_, err := conv.Send(context.Background(), "quick action", SendOptions{SuppressUserAppend: true})
	require.NoError(t, err)

	msgs := threadMessages(t, threads, conv.ThreadID())
	require.Len(t, msgs, 1)
	assert.Equal(t, thread.RoleAgent, msgs[0].Role)
}

func TestConversationSend_TransportFailureRecovers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	var notices []string
	conv, threads := newTestConversation(t, server.URL,
		WithNotifier(NotifierFunc(func(msg string) { notices = append(notices, msg) })),
	)

	state, err := conv.Send(context.Background(), "halo", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, state.Phase())

	msgs := threadMessages(t, threads, conv.ThreadID())
	require.Len(t, msgs, 2)
	assert.Equal(t, ApologyMessage, msgs[1].Content)
	require.Len(t, notices, 1)
}

func TestConversationSend_ProposalHandedOff(t *testing.T) {
	reply := "Siap. Rincian Transaksi: [Ke: Kopi Kenangan | Nominal: Rp 10.000 | Kategori: Food]. Silakan tanda tangani di bawah."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}))
	defer server.Close()

	var got *summary.Summary
	conv, _ := newTestConversation(t, server.URL,
		WithProposalHandler(ProposalHandlerFunc(func(_ thread.Message, s *summary.Summary) { got = s })),
	)

	_, err := conv.Send(context.Background(), "transfer 10rb ke kopi kenangan", SendOptions{})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "Kopi Kenangan", got.RecipientLabel)
	assert.Equal(t, int64(10_000), got.Amount)
	assert.Equal(t, "Food", got.Category)
}

func TestConversationSend_NoProposalNoHandoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": "Pengeluaran bulan ini Rp 2.000.000."})
	}))
	defer server.Close()

	called := false
	conv, _ := newTestConversation(t, server.URL,
		WithProposalHandler(ProposalHandlerFunc(func(thread.Message, *summary.Summary) { called = true })),
	)

	_, err := conv.Send(context.Background(), "ringkasan pengeluaran", SendOptions{})
	require.NoError(t, err)
	assert.False(t, called)
}

// The challenge retry is an outbound send and occupies the single-send slot:
// while it is pending, a concurrent Send is refused.
func TestConversation_PayAndRetryBlocksConcurrentSend(t *testing.T) {
	retryStarted := make(chan struct{})
	releaseRetry := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(payment.HeaderPayment) == "" {
			w.Header().Set("WWW-Authenticate", "needs-payment")
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		close(retryStarted)
		<-releaseRetry
		json.NewEncoder(w).Encode(map[string]string{"reply": "Transfer siap."})
	}))
	defer server.Close()

	ctx := context.Background()
	threads, err := thread.NewManager(ctx, thread.NewMemoryStore(), nil)
	require.NoError(t, err)
	th := threads.Create(ctx, "test thread")

	cl := NewClient(server.URL, nil, nil).
		WithSigner(testSigner(t), testDomain()).
		WithDefaultRequirements(testRequirements())
	conv := NewConversation(cl, threads, th.ID, nil)

	state, err := conv.Send(ctx, "transfer 1jt", SendOptions{})
	require.NoError(t, err)
	require.Equal(t, PhaseChallengeReceived, state.Phase())

	retryDone := make(chan error, 1)
	go func() { retryDone <- conv.PayAndRetry(ctx) }()
	<-retryStarted

	_, err = conv.Send(ctx, "cek saldo", SendOptions{})
	require.ErrorIs(t, err, ErrSendInFlight)

	close(releaseRetry)
	require.NoError(t, <-retryDone)
	assert.Equal(t, PhaseFulfilled, state.Phase())

	// The slot is free again once the retry resolves.
	err = conv.PayAndRetry(ctx)
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestConversation_ChallengeLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", "needs-payment")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	conv, threads := newTestConversation(t, server.URL)

	state, err := conv.Send(context.Background(), "transfer 1jt", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseChallengeReceived, state.Phase())
	assert.Same(t, state, conv.PendingChallenge())

	// Paying without a signer is refused with an actionable error and the
	// challenge survives.
	err = conv.PayAndRetry(context.Background())
	require.ErrorIs(t, err, ErrNoSigner)
	assert.NotNil(t, conv.PendingChallenge())

	conv.DismissChallenge()
	assert.Nil(t, conv.PendingChallenge())

	// Only the user message landed; no agent reply was appended.
	msgs := threadMessages(t, threads, conv.ThreadID())
	require.Len(t, msgs, 1)

	err = conv.PayAndRetry(context.Background())
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}
