package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ezshop/cart-service/internal/core/domain"
	"github.com/ezshop/cart-service/internal/metrics"
	"github.com/ezshop/cart-service/internal/port"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	searchLimit     = 20
)

type ProductService struct {
	db      port.DatabaseRepository
	cache   port.CacheRepository
	locks   port.LockRepository
	lockTTL time.Duration
	metrics *metrics.Metrics
}

func NewProductService(db port.DatabaseRepository, cache port.CacheRepository, locks port.LockRepository, lockTTL time.Duration, m *metrics.Metrics) *ProductService {
	return &ProductService{
		db:      db,
		cache:   cache,
		locks:   locks,
		lockTTL: lockTTL,
		metrics: m,
	}
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       float64
	Stock       int
	Category    string
}

type ProductPage struct {
	Products []domain.Product `json:"products"`
	Total    int64            `json:"total"`
	Page     int64            `json:"page"`
	Pages    int64            `json:"pages"`
}

func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(input.Name)
	description := strings.TrimSpace(input.Description)
	category := strings.TrimSpace(input.Category)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case description == "":
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	case category == "":
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	case input.Price < 0:
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	case input.Stock < 0:
		return nil, fmt.Errorf("%w: stock must be non-negative", ErrInvalidInput)
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Price:       input.Price,
		Stock:       input.Stock,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}
	s.cacheProduct(ctx, product)

	log.Info().Str("product_id", product.ID).Str("name", product.Name).Msg("product created")
	return product, nil
}

// GetProduct serves reads through the cache, falling back to the store on a
// miss or a cache failure.
func (s *ProductService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	cached, err := s.cache.GetProduct(ctx, productID)
	if err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("product cache read failed, falling back to store")
	} else if cached != nil {
		s.metrics.CacheHits.WithLabelValues("product").Inc()
		return cached, nil
	} else {
		s.metrics.CacheMisses.WithLabelValues("product").Inc()
	}

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	s.cacheProduct(ctx, product)
	return product, nil
}

// SetStock replaces a product's stock level under its stock lock, so catalog
// adjustments cannot race a checkout that is reserving the same product.
func (s *ProductService) SetStock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be non-negative", ErrInvalidInput)
	}

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	token, ok, err := s.locks.AcquireStockLock(ctx, productID, quantity, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire stock lock: %w", err)
	}
	if !ok {
		s.metrics.LockConflicts.WithLabelValues("set_stock").Inc()
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

	product.Stock = quantity
	product.UpdatedAt = time.Now()
	if err := s.db.SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}
	s.invalidateProduct(ctx, productID)

	log.Info().Str("product_id", productID).Int("stock", quantity).Msg("product stock updated")
	return product, nil
}

func (s *ProductService) ListProducts(ctx context.Context, page, limit int64) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	products, err := s.db.ListProducts(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	total, err := s.db.CountProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &ProductPage{
		Products: products,
		Total:    total,
		Page:     page,
		Pages:    pages,
	}, nil
}

func (s *ProductService) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	products, err := s.db.SearchProducts(ctx, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

func (s *ProductService) releaseLock(ctx context.Context, productID, token string) {
	if err := s.locks.ReleaseStockLock(context.WithoutCancel(ctx), productID, token); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("failed to release stock lock, lease will expire by TTL")
	}
}

func (s *ProductService) cacheProduct(ctx context.Context, product *domain.Product) {
	if err := s.cache.SetProduct(ctx, product); err != nil {
		log.Warn().Err(err).Str("product_id", product.ID).Msg("product cache write failed")
	}
}

func (s *ProductService) invalidateProduct(ctx context.Context, productID string) {
	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("product cache invalidation failed")
	}
}
