package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/auth"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue bearer tokens for local testing",
	}

	var (
		secret string
		userID string
		email  string
		role   string
		ttl    time.Duration
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an HS256 access token accepted by the checkout API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if len(secret) < 32 {
				return errors.New("--secret or JWT_SECRET of at least 32 characters is required")
			}
			if userID == "" {
				return errors.New("--user is required")
			}

			token, expiresAt, err := auth.NewJWTVerifier(secret, ttl).GenerateAccessToken(userID, email, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	mint.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	mint.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	mint.Flags().StringVar(&email, "email", "", "email claim")
	mint.Flags().StringVar(&role, "role", "customer", "role claim")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	cmd.AddCommand(mint)
	return cmd
}
