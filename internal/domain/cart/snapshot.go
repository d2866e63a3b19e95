package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"go.uber.org/zap"
)

// SnapshotReader turns a user's stored cart into priced order lines. It never trusts a
// client-supplied price and never mutates the cart.
type SnapshotReader struct {
	repo          Repository
	minPriceCents int64
	logger        *zap.Logger
}

func NewSnapshotReader(repo Repository, minPriceCents int64, logger *zap.Logger) *SnapshotReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotReader{
		repo:          repo,
		minPriceCents: minPriceCents,
		logger:        logger.With(zap.String("component", "cart_snapshot")),
	}
}

// Read returns normalized lines: duplicates merged, non-positive quantities and items
// missing from the catalog dropped, in first-seen order.
func (r *SnapshotReader) Read(ctx context.Context, userID string) ([]order.Line, error) {
	stored, err := r.repo.GetCartLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	quantities := make(map[string]int, len(stored))
	var ids []string
	for _, line := range stored {
		id := strings.TrimSpace(line.ItemID)
		if id == "" || line.Quantity < 1 {
			continue
		}
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += line.Quantity
	}
	if len(ids) == 0 {
		return nil, ErrEmptyCart
	}

	catalog, err := r.repo.GetCatalogItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalog prices: %w", err)
	}

	lines := make([]order.Line, 0, len(ids))
	for _, id := range ids {
		item, ok := catalog[id]
		if !ok {
			r.logger.Warn("dropping cart line for unknown item",
				zap.String("user_id", userID), zap.String("item_id", id))
			continue
		}
		if item.PriceCents < r.minPriceCents {
			r.logger.Error("catalog price below minimum",
				zap.String("item_id", id),
				zap.Int64("price_cents", item.PriceCents),
				zap.Int64("min_price_cents", r.minPriceCents))
			return nil, fmt.Errorf("%w: item %s", ErrInvalidPrice, id)
		}
		title := item.Title
		if title == "" {
			title = id
		}
		lines = append(lines, order.Line{
			ItemID:         id,
			Title:          title,
			UnitPriceCents: item.PriceCents,
			Quantity:       quantities[id],
		})
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return lines, nil
}
