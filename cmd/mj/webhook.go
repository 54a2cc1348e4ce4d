package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/client"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

var webhookCmd = &cobra.Command{
	Use:     "webhook",
	Short:   "Send signed payment webhooks",
	GroupID: "jobs",
}

var webhookSendCmd = &cobra.Command{
	Use:   "send <file|->",
	Short: "Sign a provider envelope and deliver it to the webhook endpoint",
	Long: `Sign a provider envelope and deliver it to the webhook endpoint.

The envelope is JSON of the form {"id", "type", "account", "data"}. Sending
the same id twice is safe: the second delivery is acknowledged as a duplicate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			return fmt.Errorf("no signing secret: set --secret or MENUJOBS_WEBHOOK_SECRET")
		}

		body, err := readInput(args[0])
		if err != nil {
			return err
		}

		res, err := apiClient.SendWebhook(context.Background(), body, secret)
		if err != nil {
			return fmt.Errorf("sending webhook: %w", err)
		}
		return printIngestResult(res)
	},
}

// readInput reads a file, or stdin when name is "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func printIngestResult(res *client.IngestResult) error {
	if jsonOutput {
		return printJSON(res)
	}
	if res.IsNew {
		fmt.Printf("Accepted %s (%s)\n", ui.RenderAccent(res.ID), res.Class)
	} else {
		fmt.Printf("Duplicate %s %s\n", ui.RenderAccent(res.ID), ui.RenderMuted("(already recorded)"))
	}
	return nil
}

// defaultWebhookSecret prefers MENUJOBS_WEBHOOK_SECRET, then the current
// entry of the server's MENUJOBS_WEBHOOK_SECRETS list.
func defaultWebhookSecret() string {
	if s := os.Getenv("MENUJOBS_WEBHOOK_SECRET"); s != "" {
		return s
	}
	first, _, _ := strings.Cut(os.Getenv("MENUJOBS_WEBHOOK_SECRETS"), ",")
	return strings.TrimSpace(first)
}

func init() {
	webhookSendCmd.Flags().String("secret", defaultWebhookSecret(), "HMAC signing secret")
	webhookCmd.AddCommand(webhookSendCmd)
}
