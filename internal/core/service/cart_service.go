package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ezshop/cart-service/internal/core/domain"
	"github.com/ezshop/cart-service/internal/metrics"
	"github.com/ezshop/cart-service/internal/port"
)

// CartService coordinates every operation that changes cart contents or
// reserves stock. Mutations follow validate -> lock -> re-validate against the
// store -> mutate -> persist -> invalidate cache -> unlock, with unlock
// guaranteed on every exit path.
type CartService struct {
	db      port.DatabaseRepository
	cache   port.CacheRepository
	locks   port.LockRepository
	lockTTL time.Duration
	metrics *metrics.Metrics
}

func NewCartService(db port.DatabaseRepository, cache port.CacheRepository, locks port.LockRepository, lockTTL time.Duration, m *metrics.Metrics) *CartService {
	return &CartService{
		db:      db,
		cache:   cache,
		locks:   locks,
		lockTTL: lockTTL,
		metrics: m,
	}
}

// GetCart returns the user's cart, creating it lazily on first access.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cached, err := s.cache.GetCart(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("cart cache read failed, falling back to store")
	} else if cached != nil {
		s.metrics.CacheHits.WithLabelValues("cart").Inc()
		return cached, nil
	} else {
		s.metrics.CacheMisses.WithLabelValues("cart").Inc()
	}

	cart, err := s.loadOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheCart(ctx, cart)
	return cart, nil
}

// AddItem merges quantity units of a product into the user's cart under the
// product's stock lock. The line item snapshots the product's current price.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	token, ok, err := s.locks.AcquireStockLock(ctx, productID, quantity, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire stock lock: %w", err)
	}
	if !ok {
		s.metrics.LockConflicts.WithLabelValues("add_item").Inc()
		return nil, ErrLockConflict
	}
	defer s.releaseLock(ctx, productID, token)

	// re-validate now that the lock is held; the cache is never consulted here
	product, err = s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	cart, err := s.loadOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart.MergeItem(productID, quantity, product.Price)
	cart.RecomputeTotal()
	cart.UpdatedAt = time.Now()
	if err := s.db.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.cacheCart(ctx, cart)
	s.invalidateProduct(ctx, productID)

	log.Info().Str("user_id", userID).Str("product_id", productID).Int("quantity", quantity).Msg("item added to cart")
	return cart, nil
}

// RemoveItem filters a product out of the cart. Removal never touches product
// stock, so no lock is taken.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.db.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}

	cart.RemoveItem(productID)
	cart.RecomputeTotal()
	cart.UpdatedAt = time.Now()
	if err := s.db.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.cacheCart(ctx, cart)
	s.invalidateProduct(ctx, productID)
	return cart, nil
}

// UpdateQuantity replaces the quantity of an existing line item under the
// product's stock lock.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	token, ok, err := s.locks.AcquireStockLock(ctx, productID, quantity, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire stock lock: %w", err)
	}
	if !ok {
		s.metrics.LockConflicts.WithLabelValues("update_quantity").Inc()
		return nil, ErrLockConflict
	}
	defer s.releaseLock(ctx, productID, token)

	product, err = s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	cart, err := s.db.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	if !cart.SetQuantity(productID, quantity) {
		return nil, ErrItemNotFound
	}

	cart.RecomputeTotal()
	cart.UpdatedAt = time.Now()
	if err := s.db.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.cacheCart(ctx, cart)
	s.invalidateProduct(ctx, productID)
	return cart, nil
}

// Checkout locks every product in the cart, re-validates all stocks against
// the store, persists the decrements, then clears the cart. Stock validation
// completes for the whole cart before any decrement is written, so a shortfall
// never leaves a partial commit. A store write error mid-sequence still can:
// that surfaces as ErrCheckoutFailed and is logged, not compensated.
func (s *CartService) Checkout(ctx context.Context, userID string) (float64, error) {
	cart, err := s.db.GetCart(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || len(cart.Items) == 0 {
		return 0, ErrEmptyCart
	}

	type lease struct {
		productID string
		token     string
	}
	acquired := make([]lease, 0, len(cart.Items))
	releaseAll := func() {
		for _, l := range acquired {
			s.releaseLock(ctx, l.productID, l.token)
		}
	}

	for _, item := range cart.Items {
		token, ok, err := s.locks.AcquireStockLock(ctx, item.ProductID, item.Quantity, s.lockTTL)
		if err != nil {
			releaseAll()
			return 0, fmt.Errorf("acquire stock lock: %w", err)
		}
		if !ok {
			releaseAll()
			s.metrics.LockConflicts.WithLabelValues("checkout").Inc()
			return 0, ErrLockConflict
		}
		acquired = append(acquired, lease{productID: item.ProductID, token: token})
	}
	defer releaseAll()

	products := make(map[string]*domain.Product, len(cart.Items))
	for _, item := range cart.Items {
		product, err := s.db.GetProduct(ctx, item.ProductID)
		if err != nil {
			return 0, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if product == nil || product.Stock < item.Quantity {
			s.metrics.CheckoutFailures.Inc()
			return 0, fmt.Errorf("%w: insufficient stock for product %s", ErrCheckoutFailed, item.ProductID)
		}
		products[item.ProductID] = product
	}

	for _, item := range cart.Items {
		product := products[item.ProductID]
		product.Stock -= item.Quantity
		product.UpdatedAt = time.Now()
		if err := s.db.SaveProduct(ctx, product); err != nil {
			s.metrics.CheckoutFailures.Inc()
			log.Error().Err(err).
				Str("user_id", userID).
				Str("product_id", item.ProductID).
				Msg("checkout persistence failed mid-sequence, earlier decrements are not rolled back")
			return 0, fmt.Errorf("%w: persist product %s: %v", ErrCheckoutFailed, item.ProductID, err)
		}
		s.invalidateProduct(ctx, item.ProductID)
	}

	orderTotal := cart.Total
	cart.Clear()
	cart.UpdatedAt = time.Now()
	if err := s.db.SaveCart(ctx, cart); err != nil {
		s.metrics.CheckoutFailures.Inc()
		return 0, fmt.Errorf("%w: clear cart: %v", ErrCheckoutFailed, err)
	}
	s.cacheCart(ctx, cart)

	log.Info().Str("user_id", userID).Float64("order_total", orderTotal).Msg("checkout completed")
	return orderTotal, nil
}

func (s *CartService) loadOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.db.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}
	cart = domain.NewCart(userID)
	if err := s.db.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// releaseLock runs on every exit path. Release survives caller cancellation,
// otherwise a canceled request would strand its lease until the TTL.
func (s *CartService) releaseLock(ctx context.Context, productID, token string) {
	if err := s.locks.ReleaseStockLock(context.WithoutCancel(ctx), productID, token); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("failed to release stock lock, lease will expire by TTL")
	}
}

// cacheCart and invalidateProduct are best-effort: the store already holds the
// truth, so cache failures are logged and swallowed.
func (s *CartService) cacheCart(ctx context.Context, cart *domain.Cart) {
	if err := s.cache.SetCart(ctx, cart); err != nil {
		log.Warn().Err(err).Str("user_id", cart.UserID).Msg("cart cache write failed")
	}
}

func (s *CartService) invalidateProduct(ctx context.Context, productID string) {
	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("product cache invalidation failed")
	}
}
