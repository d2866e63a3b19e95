package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and maintain orders",
	}

	var olderThan time.Duration
	expire := &cobra.Command{
		Use:   "expire",
		Short: "Mark pending orders older than a cutoff as failed",
		Long: `Mark pending orders older than a cutoff as failed.

Uses the same conditional transition as the webhook, so an order the
gateway settles concurrently is left alone.

Examples:
  storefrontctl orders expire --older-than 24h`,
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			ledger := order.NewLedger(store.NewPostgresStore(db, 0), zap.NewNop())
			cutoff := time.Now().Add(-olderThan)
			n, err := ledger.ExpireStale(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending order(s) created before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		}),
	}
	expire.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "age after which a pending order is abandoned")

	cmd.AddCommand(expire)
	return cmd
}
