package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezshop/cart-service/internal/core/domain"
)

type MongoAdapter struct {
	products *mongo.Collection
	carts    *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		products: db.Collection("products"),
		carts:    db.Collection("carts"),
	}
}

// EnsureIndexes creates the text index backing product search.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "name", Value: "text"},
			{Key: "description", Value: "text"},
		},
	})
	if err != nil {
		return fmt.Errorf("create product text index: %w", err)
	}
	return nil
}

func (m *MongoAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	err := m.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &product, nil
}

func (m *MongoAdapter) SaveProduct(ctx context.Context, product *domain.Product) error {
	_, err := m.products.ReplaceOne(ctx,
		bson.M{"_id": product.ID},
		product,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (m *MongoAdapter) CountProducts(ctx context.Context) (int64, error) {
	count, err := m.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

func (m *MongoAdapter) ListProducts(ctx context.Context, skip, limit int64) ([]domain.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := m.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var products []domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (m *MongoAdapter) SearchProducts(ctx context.Context, query string, limit int64) ([]domain.Product, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(limit)

	cursor, err := m.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	var products []domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (m *MongoAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := m.carts.FindOne(ctx, bson.M{"_id": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return &cart, nil
}

func (m *MongoAdapter) SaveCart(ctx context.Context, cart *domain.Cart) error {
	_, err := m.carts.ReplaceOne(ctx,
		bson.M{"_id": cart.UserID},
		cart,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
