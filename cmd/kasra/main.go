package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "kasra",
		Usage: "KASRA financial assistant CLI",
		Description: `A command-line client for the KASRA assistant service.

Use this CLI to chat with the assistant, inspect saved conversation threads,
and check server health. When the server requires payment, the chat command
prompts before signing a transfer authorization with the configured wallet key.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			chatCommand(),
			// Thread inspection commands
			{
				Name:  "threads",
				Usage: "Conversation thread inspection commands",
				Subcommands: []*cli.Command{
					listThreadsCommand(),
					showThreadCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Assistant server URL",
				EnvVars: []string{"KASRA_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for thread persistence",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
