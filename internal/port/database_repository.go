package port

import (
	"context"

	"github.com/ezshop/cart-service/internal/core/domain"
)

// DatabaseRepository is the authoritative store. It is the only source of
// truth for stock decisions.
type DatabaseRepository interface {
	// GetProduct returns (nil, nil) when the product does not exist
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// SaveProduct upserts a product document
	SaveProduct(ctx context.Context, product *domain.Product) error

	CountProducts(ctx context.Context) (int64, error)

	// ListProducts returns products sorted newest first
	ListProducts(ctx context.Context, skip, limit int64) ([]domain.Product, error)

	SearchProducts(ctx context.Context, query string, limit int64) ([]domain.Product, error)

	// GetCart returns (nil, nil) when the user has no cart yet
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveCart upserts a cart document
	SaveCart(ctx context.Context, cart *domain.Cart) error
}
