package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ezshop/cart-service/internal/core/domain"
	"github.com/ezshop/cart-service/internal/metrics"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// Mock DatabaseRepository
type memStore struct {
	mu           sync.Mutex
	products     map[string]domain.Product
	productOrder []string
	carts        map[string]domain.Cart

	saveCartErr    error
	failProductID  string // SaveProduct fails for this product
	saveProductErr error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
	}
}

func (m *memStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (m *memStore) SaveProduct(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failProductID == product.ID && m.saveProductErr != nil {
		return m.saveProductErr
	}
	if _, ok := m.products[product.ID]; !ok {
		m.productOrder = append(m.productOrder, product.ID)
	}
	m.products[product.ID] = *product
	return nil
}

func (m *memStore) CountProducts(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.products)), nil
}

func (m *memStore) ListProducts(ctx context.Context, skip, limit int64) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var products []domain.Product
	for i := len(m.productOrder) - 1; i >= 0; i-- { // newest first
		products = append(products, m.products[m.productOrder[i]])
	}
	if skip >= int64(len(products)) {
		return nil, nil
	}
	products = products[skip:]
	if limit < int64(len(products)) {
		products = products[:limit]
	}
	return products, nil
}

func (m *memStore) SearchProducts(ctx context.Context, query string, limit int64) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var products []domain.Product
	for _, id := range m.productOrder {
		p := m.products[id]
		if strings.Contains(p.Name, query) || strings.Contains(p.Description, query) {
			products = append(products, p)
		}
		if int64(len(products)) == limit {
			break
		}
	}
	return products, nil
}

func (m *memStore) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[userID]
	if !ok {
		return nil, nil
	}
	copied := cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (m *memStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveCartErr != nil {
		return m.saveCartErr
	}
	copied := *cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	m.carts[cart.UserID] = copied
	return nil
}

func (m *memStore) productStock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

func (m *memStore) storedCart(userID string) (domain.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	return cart, ok
}

// Mock CacheRepository
type memCache struct {
	mu       sync.Mutex
	products map[string]domain.Product
	carts    map[string]domain.Cart
}

func newMemCache() *memCache {
	return &memCache{
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
	}
}

func (c *memCache) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	product, ok := c.products[productID]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (c *memCache) SetProduct(ctx context.Context, product *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = *product
	return nil
}

func (c *memCache) InvalidateProduct(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, productID)
	return nil
}

func (c *memCache) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		return nil, nil
	}
	copied := cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (c *memCache) SetCart(ctx context.Context, cart *domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	c.carts[cart.UserID] = copied
	return nil
}

func (c *memCache) InvalidateCart(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, userID)
	return nil
}

func (c *memCache) hasProduct(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.products[productID]
	return ok
}

func (c *memCache) cachedCart(userID string) (domain.Cart, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	return cart, ok
}

// failCache errors on every call, simulating an unreachable cache.
type failCache struct{}

var errCacheDown = errors.New("cache unreachable")

func (failCache) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return nil, errCacheDown
}
func (failCache) SetProduct(ctx context.Context, product *domain.Product) error { return errCacheDown }
func (failCache) InvalidateProduct(ctx context.Context, productID string) error {
	return errCacheDown
}
func (failCache) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return nil, errCacheDown
}
func (failCache) SetCart(ctx context.Context, cart *domain.Cart) error    { return errCacheDown }
func (failCache) InvalidateCart(ctx context.Context, userID string) error { return errCacheDown }

// Mock LockRepository with TTL expiry and fencing-token release.
type memLock struct {
	mu         sync.Mutex
	leases     map[string]memLease
	now        func() time.Time
	nextToken  int
	holders    int
	maxHolders int
}

type memLease struct {
	token   string
	expires time.Time
}

func newMemLock() *memLock {
	return &memLock{
		leases: make(map[string]memLease),
		now:    time.Now,
	}
}

func (l *memLock) AcquireStockLock(ctx context.Context, productID string, quantity int, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[productID]; ok && l.now().Before(lease.expires) {
		return "", false, nil
	}
	l.nextToken++
	token := fmt.Sprintf("token-%d", l.nextToken)
	l.leases[productID] = memLease{token: token, expires: l.now().Add(ttl)}
	l.holders++
	if l.holders > l.maxHolders {
		l.maxHolders = l.holders
	}
	return token, true, nil
}

func (l *memLock) ReleaseStockLock(ctx context.Context, productID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[productID]; ok && lease.token == token {
		delete(l.leases, productID)
		l.holders--
	}
	return nil
}

func (l *memLock) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders
}

func (l *memLock) maxConcurrent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxHolders
}

func (l *memLock) held(productID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lease, ok := l.leases[productID]
	return ok && l.now().Before(lease.expires)
}
