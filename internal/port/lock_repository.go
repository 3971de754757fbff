package port

import (
	"context"
	"time"
)

// LockRepository hands out short-lived mutually-exclusive leases keyed by
// product ID. Leases self-expire after their TTL.
type LockRepository interface {
	// AcquireStockLock attempts to take the lease for productID without
	// blocking. On success it returns a fencing token that must be presented
	// to release the lease; ok=false means another operation holds it.
	AcquireStockLock(ctx context.Context, productID string, quantity int, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseStockLock deletes the lease if the token still matches. Releasing
	// an absent, expired or foreign lease is a no-op.
	ReleaseStockLock(ctx context.Context, productID, token string) error
}
