package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezshop/cart-service/internal/core/domain"
)

func getMongoAdapter(t *testing.T) *MongoAdapter {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database(fmt.Sprintf("cartsvc_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		db.Drop(cleanupCtx)
		client.Disconnect(cleanupCtx)
	})

	adapter := NewMongoAdapter(db)
	if err := adapter.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	return adapter
}

func TestProduct_SaveAndGet(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()

	product := &domain.Product{
		ID:          "test-product",
		Name:        "widget",
		Description: "a widget",
		Price:       9.5,
		Stock:       3,
		Category:    "tools",
		CreatedAt:   time.Now().Truncate(time.Millisecond),
		UpdatedAt:   time.Now().Truncate(time.Millisecond),
	}
	if err := adapter.SaveProduct(ctx, product); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}

	got, err := adapter.GetProduct(ctx, "test-product")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got == nil || got.Name != "widget" || got.Stock != 3 || got.Price != 9.5 {
		t.Errorf("unexpected product: %+v", got)
	}

	// upsert replaces in place
	product.Stock = 1
	if err := adapter.SaveProduct(ctx, product); err != nil {
		t.Fatalf("SaveProduct (update) failed: %v", err)
	}
	got, _ = adapter.GetProduct(ctx, "test-product")
	if got.Stock != 1 {
		t.Errorf("expected stock 1 after update, got %d", got.Stock)
	}
}

func TestProduct_GetMissing(t *testing.T) {
	adapter := getMongoAdapter(t)

	got, err := adapter.GetProduct(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for a missing product")
	}
}

func TestProduct_ListAndCount(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 15; i++ {
		err := adapter.SaveProduct(ctx, &domain.Product{
			ID:        fmt.Sprintf("p%02d", i),
			Name:      fmt.Sprintf("product %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveProduct failed: %v", err)
		}
	}

	count, err := adapter.CountProducts(ctx)
	if err != nil {
		t.Fatalf("CountProducts failed: %v", err)
	}
	if count != 15 {
		t.Errorf("expected 15 products, got %d", count)
	}

	products, err := adapter.ListProducts(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 10 {
		t.Fatalf("expected 10 products, got %d", len(products))
	}
	if products[0].ID != "p14" {
		t.Errorf("expected newest product first, got %s", products[0].ID)
	}

	products, err = adapter.ListProducts(ctx, 10, 10)
	if err != nil {
		t.Fatalf("ListProducts (page 2) failed: %v", err)
	}
	if len(products) != 5 {
		t.Errorf("expected 5 products on the last page, got %d", len(products))
	}
}

func TestProduct_Search(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()

	adapter.SaveProduct(ctx, &domain.Product{ID: "p1", Name: "red shoe", Description: "running"})
	adapter.SaveProduct(ctx, &domain.Product{ID: "p2", Name: "hat", Description: "red wool"})
	adapter.SaveProduct(ctx, &domain.Product{ID: "p3", Name: "socks", Description: "white"})

	products, err := adapter.SearchProducts(ctx, "red", 20)
	if err != nil {
		t.Fatalf("SearchProducts failed: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 matches, got %d", len(products))
	}
}

func TestCart_SaveAndGet(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()

	got, err := adapter.GetCart(ctx, "test-user")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil for a user with no cart")
	}

	cart := domain.NewCart("test-user")
	cart.MergeItem("p1", 2, 10)
	cart.MergeItem("p2", 1, 5)
	cart.RecomputeTotal()
	if err := adapter.SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart failed: %v", err)
	}

	got, err = adapter.GetCart(ctx, "test-user")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if got == nil || len(got.Items) != 2 || got.Total != 25 {
		t.Errorf("unexpected cart: %+v", got)
	}

	// clearing persists through the same upsert path
	got.Clear()
	if err := adapter.SaveCart(ctx, got); err != nil {
		t.Fatalf("SaveCart (clear) failed: %v", err)
	}
	got, _ = adapter.GetCart(ctx, "test-user")
	if len(got.Items) != 0 || got.Total != 0 {
		t.Errorf("expected cleared cart, got %+v", got)
	}
}
