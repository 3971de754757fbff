package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ezshop/cart-service/internal/core/domain"
)

const (
	productKeyPrefix   = "product:"
	cartKeyPrefix      = "cart:"
	stockLockKeyPrefix = "stock:lock:"
)

// releaseLockScript deletes the lease only when the stored fencing token
// matches. A mismatched, expired or absent lease is left alone.
var releaseLockScript = redis.NewScript(`
local value = redis.call('GET', KEYS[1])
if value and string.find(value, ARGV[1], 1, true) == 1 then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client     *redis.Client
	productTTL time.Duration
	cartTTL    time.Duration
}

func NewRedisAdapter(client *redis.Client, productTTL, cartTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:     client,
		productTTL: productTTL,
		cartTTL:    cartTTL,
	}
}

func (r *RedisAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	if ok, err := r.getJSON(ctx, productKeyPrefix+productID, &product); err != nil || !ok {
		return nil, err
	}
	return &product, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product *domain.Product) error {
	return r.setJSON(ctx, productKeyPrefix+product.ID, product, r.productTTL)
}

func (r *RedisAdapter) InvalidateProduct(ctx context.Context, productID string) error {
	return r.client.Del(ctx, productKeyPrefix+productID).Err()
}

func (r *RedisAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	if ok, err := r.getJSON(ctx, cartKeyPrefix+userID, &cart); err != nil || !ok {
		return nil, err
	}
	return &cart, nil
}

func (r *RedisAdapter) SetCart(ctx context.Context, cart *domain.Cart) error {
	return r.setJSON(ctx, cartKeyPrefix+cart.UserID, cart, r.cartTTL)
}

func (r *RedisAdapter) InvalidateCart(ctx context.Context, userID string) error {
	return r.client.Del(ctx, cartKeyPrefix+userID).Err()
}

// AcquireStockLock takes the lease with SET NX, never blocking. The lease
// value is "<token>:<quantity>" so the reserved quantity travels with the
// lease while release compares only the token prefix.
func (r *RedisAdapter) AcquireStockLock(ctx context.Context, productID string, quantity int, ttl time.Duration) (string, bool, error) {
	key := stockLockKeyPrefix + productID
	token := uuid.NewString()
	lease := fmt.Sprintf("%s:%d", token, quantity)

	ok, err := r.client.SetNX(ctx, key, lease, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisAdapter) ReleaseStockLock(ctx context.Context, productID, token string) error {
	key := stockLockKeyPrefix + productID
	return releaseLockScript.Run(ctx, r.client, []string{key}, token).Err()
}

func (r *RedisAdapter) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisAdapter) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}
