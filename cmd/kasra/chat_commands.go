package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kasralabs/kasra/client"
	"github.com/kasralabs/kasra/service/payment"
	"github.com/kasralabs/kasra/service/summary"
	"github.com/kasralabs/kasra/service/thread"
	"github.com/urfave/cli/v2"
)

// agentGreeting seeds new threads so a conversation opens the way the
// assistant introduces itself.
const agentGreeting = "Saya KASRA. Tanyakan Saldo, ringkasan Pengeluaran, atau minta saya siapkan transfer IDRX."

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat with the assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "thread",
				Aliases: []string{"t"},
				Usage:   "Resume an existing thread by ID (default: start a new thread)",
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex wallet private key used to sign payment authorizations",
				EnvVars: []string{"WALLET_PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "token-address",
				Usage:   "IDRX token contract address (EIP-712 verifying contract)",
				EnvVars: []string{"IDRX_TOKEN_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "token-name",
				Usage:   "EIP-712 domain name",
				EnvVars: []string{"IDRX_TOKEN_NAME"},
				Value:   "IDRX",
			},
			&cli.StringFlag{
				Name:    "token-version",
				Usage:   "EIP-712 domain version",
				EnvVars: []string{"IDRX_TOKEN_VERSION"},
				Value:   "1",
			},
			&cli.Int64Flag{
				Name:    "chain-id",
				Usage:   "EIP-712 chain ID",
				EnvVars: []string{"CHAIN_ID"},
				Value:   84532,
			},
			&cli.StringFlag{
				Name:    "locale",
				Usage:   "Directive locale for proposal extraction: id or en",
				EnvVars: []string{"LOCALE"},
				Value:   "id",
			},
			&cli.StringFlag{
				Name:    "demo-recipient",
				Usage:   "Fallback recipient address for proposals naming a recipient in prose",
				EnvVars: []string{"DEMO_RECIPIENT_ADDRESS"},
			},
		},
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))

	httpClient := &http.Client{
		Timeout: 2 * time.Minute, // model calls can be slow
	}
	cl := client.NewClient(c.String("server-url"), httpClient, logger)

	if key := c.String("private-key"); key != "" {
		signer, err := payment.NewLocalSigner(key)
		if err != nil {
			return fmt.Errorf("invalid wallet private key: %w", err)
		}
		cl = cl.WithSigner(signer, payment.Domain{
			Name:              c.String("token-name"),
			Version:           c.String("token-version"),
			ChainID:           c.Int64("chain-id"),
			VerifyingContract: common.HexToAddress(c.String("token-address")),
		})
		fmt.Fprintf(os.Stderr, "Wallet loaded: %s\n", signer.Address().Hex())
	} else {
		fmt.Fprintln(os.Stderr, "No wallet key configured; payment challenges cannot be answered.")
	}

	manager, closeStore, err := openThreadManager(ctx, c.String("database-url"), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var th *thread.Thread
	if id := c.String("thread"); id != "" {
		existing, ok := manager.Get(id)
		if !ok {
			return fmt.Errorf("thread %s not found", id)
		}
		th = existing
	} else {
		th = manager.Create(ctx, "CLI chat "+time.Now().Format("2006-01-02 15:04"))
		greeting := thread.NewMessage(thread.RoleAgent, agentGreeting)
		if err := manager.Append(ctx, th.ID, greeting); err != nil {
			return fmt.Errorf("failed to seed greeting: %w", err)
		}
		fmt.Printf("kasra> %s\n", agentGreeting)
	}
	fmt.Fprintf(os.Stderr, "Thread: %s\n\n", th.ID)

	locale := summary.LocaleIndonesian
	if c.String("locale") == "en" {
		locale = summary.LocaleEnglish
	}
	extractor := summary.NewExtractor(locale, c.String("demo-recipient"))

	conv := client.NewConversation(cl, manager, th.ID, extractor,
		client.WithLogger(logger),
		client.WithNotifier(client.NotifierFunc(func(message string) {
			fmt.Printf("kasra> %s\n", message)
		})),
		client.WithProposalHandler(client.ProposalHandlerFunc(func(msg thread.Message, s *summary.Summary) {
			fmt.Println("--- Transaction Proposal ---")
			fmt.Printf("  Recipient: %s (%s)\n", s.RecipientLabel, s.RecipientAddress.Hex())
			fmt.Printf("  Amount:    %d IDRX\n", s.Amount)
			fmt.Printf("  Category:  %s\n", s.Category)
			fmt.Println("----------------------------")
		})),
	)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		state, err := conv.Send(ctx, text, client.SendOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}

		switch state.Phase() {
		case client.PhaseFulfilled:
			fmt.Printf("kasra> %s\n", state.Reply())
		case client.PhaseChallengeReceived:
			if err := answerChallenge(ctx, conv, state, scanner); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		}
	}

	return scanner.Err()
}

// answerChallenge prompts the user to approve a payment challenge and
// retries the held message with a signed authorization on approval.
func answerChallenge(ctx context.Context, conv *client.Conversation, state *client.SendState, scanner *bufio.Scanner) error {
	ch := state.Challenge()
	fmt.Println("--- Payment Required ---")
	if ch.Details != "" {
		fmt.Printf("  %s\n", ch.Details)
	}
	if req := ch.Requirements; req != nil {
		fmt.Printf("  Pay %d (smallest unit) of %s to %s on %s\n",
			req.Amount, req.Asset, req.PayTo, req.Network)
	}
	fmt.Print("Sign and pay? [y/N] ")

	if !scanner.Scan() {
		conv.DismissChallenge()
		return nil
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "y" && answer != "yes" {
		conv.DismissChallenge()
		fmt.Println("Payment declined; message dismissed.")
		return nil
	}

	if err := conv.PayAndRetry(ctx); err != nil {
		return fmt.Errorf("payment retry failed: %w", err)
	}
	fmt.Printf("kasra> %s\n", state.Reply())
	return nil
}

// openThreadManager wires the thread manager against Postgres when a
// database URL is configured, falling back to the in-memory store.
func openThreadManager(ctx context.Context, databaseURL string, logger *slog.Logger) (*thread.Manager, func(), error) {
	if databaseURL == "" {
		manager, err := thread.NewManager(ctx, thread.NewMemoryStore(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize thread manager: %w", err)
		}
		return manager, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := thread.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure thread schema: %w", err)
	}

	manager, err := thread.NewManager(ctx, store, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize thread manager: %w", err)
	}
	return manager, pool.Close, nil
}
