package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/itchyny/gojq"
	"github.com/kasralabs/kasra/service/thread"
	"github.com/urfave/cli/v2"
)

func listThreadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved conversation threads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Filter output through a jq expression, e.g. '.[] | select(.title | contains(\"CLI\"))'",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			manager, closeStore, err := openThreadManager(ctx, c.String("database-url"), discardLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			threads := manager.List()

			if filter := c.String("jq"); filter != "" {
				return printFiltered(threads, filter)
			}

			if c.Bool("json") {
				return printJSON(threads)
			}

			if len(threads) == 0 {
				fmt.Println("No threads found.")
				return nil
			}
			for _, th := range threads {
				fmt.Printf("%s  %-30s  %d messages  updated %s\n",
					th.ID, th.Title, len(th.Messages), th.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func showThreadCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the messages of a thread",
		ArgsUsage: "THREAD_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Filter output through a jq expression, e.g. '.messages[] | select(.role == \"agent\")'",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("thread ID is required")
			}
			id := c.Args().Get(0)

			ctx := context.Background()
			manager, closeStore, err := openThreadManager(ctx, c.String("database-url"), discardLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			th, ok := manager.Get(id)
			if !ok {
				return fmt.Errorf("thread %s not found", id)
			}

			if filter := c.String("jq"); filter != "" {
				return printFiltered(th, filter)
			}

			if c.Bool("json") {
				return printJSON(th)
			}

			fmt.Printf("Thread %s (%s)\n\n", th.ID, th.Title)
			for _, msg := range th.Messages {
				prefix := "you"
				if msg.Role == thread.RoleAgent {
					prefix = "kasra"
				}
				fmt.Printf("[%s] %s> %s\n", msg.CreatedAt.Format("15:04:05"), prefix, msg.Content)
			}
			return nil
		},
	}
}

// printFiltered marshals v to generic JSON and runs a jq expression over it,
// printing each result on its own line.
func printFiltered(v any, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	iter := code.Run(generic)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
