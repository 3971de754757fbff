package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezshop/cart-service/internal/adapter/handler"
	"github.com/ezshop/cart-service/internal/adapter/storage"
	"github.com/ezshop/cart-service/internal/config"
	"github.com/ezshop/cart-service/internal/core/service"
	"github.com/ezshop/cart-service/internal/metrics"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.With().Str("service", "cart-service").Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MongoDB
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()

	mongoClient, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetMaxPoolSize(50))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mongodb")
	}
	if err := mongoClient.Ping(connectCtx, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mongodb")
	}
	log.Info().Msg("connected to mongodb")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	// Initialize adapters
	mongoAdapter := storage.NewMongoAdapter(mongoClient.Database(cfg.Mongo.Database))
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.ProductCacheTTL, cfg.CartCacheTTL)

	if err := mongoAdapter.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	// Initialize services
	m := metrics.New(prometheus.DefaultRegisterer)
	productService := service.NewProductService(mongoAdapter, redisAdapter, redisAdapter, cfg.StockLockTTL, m)
	cartService := service.NewCartService(mongoAdapter, redisAdapter, redisAdapter, cfg.StockLockTTL, m)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(productService, cartService, m)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("HTTP server stopped")

	rdb.Close()
	mongoClient.Disconnect(shutdownCtx)
	log.Info().Msg("connections closed")
}
