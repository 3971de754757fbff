package port

import (
	"context"

	"github.com/ezshop/cart-service/internal/core/domain"
)

// CacheRepository is a read-through cache over the authoritative store. It is
// never consulted for stock decisions and is best-effort: callers degrade to
// store reads on failure.
type CacheRepository interface {
	// GetProduct returns (nil, nil) on a cache miss
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	SetProduct(ctx context.Context, product *domain.Product) error

	InvalidateProduct(ctx context.Context, productID string) error

	// GetCart returns (nil, nil) on a cache miss
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	SetCart(ctx context.Context, cart *domain.Cart) error

	InvalidateCart(ctx context.Context, userID string) error
}
