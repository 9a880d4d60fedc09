// Package agent produces assistant replies for chat messages.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// SystemPrompt instructs the model to behave as KASRA, the Indonesian
// financial assistant, and to emit transaction proposals in the directive
// format the extractor understands.
const SystemPrompt = `You are KASRA, a professional, strict, yet helpful Financial Assistant for the Base Blockchain. Your primary language is Indonesian (Bahasa Indonesia).

Your Operating Protocols:
1) Tone: Professional, concise, financial-focused. Use terms like 'Saldo' (Balance), 'Aset' (Asset), 'Pengeluaran' (Expense).
2) Mandatory Validation: Before verifying any transfer request, you MUST check the user's balance using your tools.
   - If Balance < Amount: Reply 'Saldo Anda tidak mencukupi untuk transaksi ini. Harap hemat.'
   - If Balance > Amount: Proceed.
3) Categorization: You are an accountant. Every transfer must have a category (e.g., Food, Transport, Debt). If the user doesn't specify one, infer it from the context or label it 'Uncategorized Expense'.
4) IDRX Handling: When users say 'Rp 50.000' or '50rb', treat this as 50,000 units of the IDRX Token.
5) Output Format: If you are ready to propose a transaction, end your response with:
   'Rincian Transaksi: [Ke: <Recipient> | Nominal: <Amount> | Kategori: <Category>]. Silakan tanda tangani di bawah.'
`

// Agent produces a reply for a single user message.
type Agent interface {
	Reply(ctx context.Context, message string) (string, error)
}

// AnthropicAgent calls the Anthropic Messages API with the KASRA system
// prompt. It is stateless between calls; conversation history lives in the
// thread store, not here.
type AnthropicAgent struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicAgent creates an agent backed by the Anthropic API.
func NewAnthropicAgent(apiKey, model string, maxTokens int64) *AnthropicAgent {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicAgent{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Reply sends the user message to the model and returns the concatenated
// text blocks of the response.
func (a *AnthropicAgent) Reply(ctx context.Context, message string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic response contained no text content")
	}
	return sb.String(), nil
}

// Func adapts an ordinary function to the Agent interface.
type Func func(ctx context.Context, message string) (string, error)

func (f Func) Reply(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}
