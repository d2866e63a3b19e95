package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment/webhook"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Work with payment gateway webhooks",
	}
	cmd.AddCommand(webhookSignCmd())
	return cmd
}

func webhookSignCmd() *cobra.Command {
	var (
		secret    string
		id        string
		timestamp int64
		bodyFile  string
	)

	cmd := &cobra.Command{
		Use:   "sign [body]",
		Short: "Print the headers for a signed test delivery",
		Long: `Print the webhook-id, webhook-timestamp and webhook-signature headers
for a delivery body, signed the way the gateway signs it.

The body comes from the argument, --file, or stdin, and is signed byte for byte.

Examples:
  storefrontctl webhook sign '{"type":"payment.succeeded"}'
  storefrontctl webhook sign --file event.json --id msg_123`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("WEBHOOK_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or WEBHOOK_SECRET is required")
			}

			body, err := readBody(cmd, args, bodyFile)
			if err != nil {
				return err
			}
			if id == "" {
				id = "msg_" + uuid.NewString()
			}
			ts := time.Now()
			if timestamp > 0 {
				ts = time.Unix(timestamp, 0)
			}

			headers, err := webhook.Headers(secret, id, ts, body)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(headers))
			for k := range headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, headers.Get(k))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "whsec_ signing secret (defaults to WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&id, "id", "", "delivery id (random when empty)")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix seconds (now when zero)")
	cmd.Flags().StringVarP(&bodyFile, "file", "f", "", "read the body from a file")

	return cmd
}

func readBody(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case len(args) == 1:
		return []byte(args[0]), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}
