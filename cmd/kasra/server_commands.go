package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kasralabs/kasra/service/payment"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health and payment gateway status",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set KASRA_SERVER_URL env var or use --server-url)")
			}

			client := &http.Client{
				Timeout: c.Duration("timeout"),
			}

			resp, err := client.Get(serverURL + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
			}

			fmt.Printf("✓ Server is healthy (status: %d)\n", resp.StatusCode)
			fmt.Printf("  URL: %s\n", serverURL)

			gateway, err := gatewayStatus(client, serverURL)
			if err != nil {
				return fmt.Errorf("payment gateway check failed: %w", err)
			}
			fmt.Printf("  Payment gateway: %s\n", gateway)
			return nil
		},
	}
}

// gatewayStatus queries the payment requirements endpoint. A 404 means the
// server runs with the gateway disabled; anything else must be a decodable
// requirements document.
func gatewayStatus(client *http.Client, serverURL string) (string, error) {
	resp, err := client.Get(serverURL + "/api/v1/payment-requirements")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "disabled (chat endpoint is open)", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var req payment.Requirements
	if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
		return "", fmt.Errorf("decoding payment requirements: %w", err)
	}
	return fmt.Sprintf("enabled (fee %d on %s, pay to %s)", req.Amount, req.Network, req.PayTo), nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("kasra CLI\n")
			fmt.Printf("  Version: %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", date)
			return nil
		},
	}
}
