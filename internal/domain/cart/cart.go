package cart

import (
	"context"
	"errors"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInvalidPrice = errors.New("invalid price detected")
)

// Line is one cart entry as stored. It carries no price; prices come from the catalog.
type Line struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// CatalogItem is the authoritative price and title of a purchasable song or album.
type CatalogItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
}

type Repository interface {
	GetCartLines(ctx context.Context, userID string) ([]Line, error)
	// GetCatalogItems returns the items that exist among ids, keyed by id.
	GetCatalogItems(ctx context.Context, ids []string) (map[string]CatalogItem, error)
	ClearCart(ctx context.Context, userID string) error
}
