package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-spa-checkout/internal/aws"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/cart"
	"github.com/imrishuroy/go-spa-checkout/internal/config"
	"github.com/imrishuroy/go-spa-checkout/internal/handlers"
	"github.com/imrishuroy/go-spa-checkout/internal/idempotency"
	"github.com/imrishuroy/go-spa-checkout/internal/inflight"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
)

func main() {
	// a missing .env is fine outside local runs
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "spa-checkout-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := context.Background()

	storage, confirmGuard, paymentGuard, err := cartBackends(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init cart storage", err)
		os.Exit(1)
	}

	clients, err := aws.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		log.Error(ctx, "failed to init aws clients", err)
		os.Exit(1)
	}

	hcfg := handlers.HandlerConfig{
		Storage:  storage,
		Bookings: bookings.NewStore(clients.DynamoDB, bookings.Tables{
			Bookings:       cfg.Tables.Bookings,
			BookingsByUser: cfg.Tables.BookingsByUser,
			Payments:       cfg.Tables.Payments,
			Idempotency:    cfg.Tables.Idempotency,
			IdempotencyTTL: cfg.Tables.IdempotencyTTL,
		}),
		Idempotency:  idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Tables.IdempotencyTTL),
		Publisher:    aws.NewPublisher(clients.SQS, cfg.Queue.BookingEventsURL),
		ConfirmGuard: confirmGuard,
		PaymentGuard: paymentGuard,
		Logger:       log,
	}

	if !cfg.App.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handlers.NewRouter(hcfg)

	if cfg.App.RunLocal {
		addr := ":" + cfg.App.Port
		log.Info(log.WithField(ctx, "addr", addr), "running local server")
		if err := r.Run(addr); err != nil {
			log.Error(ctx, "local server stopped", err)
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// cartBackends wires carts and guards to Redis. Local runs without a Redis
// endpoint keep both in process memory.
func cartBackends(ctx context.Context, cfg *config.Config, log *logger.Logger) (handlers.StorageFactory, inflight.Guard, inflight.Guard, error) {
	if !cfg.Redis.Configured() {
		log.Warn(ctx, "no redis configured, carts are kept in memory", nil)
		return cart.NewMemoryPool().For, inflight.NewLocal(), inflight.NewLocal(), nil
	}

	rdb, err := newRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn(ctx, "redis not reachable at startup", err)
	}

	confirmGuard, err := inflight.NewRedis(rdb, "inflight:checkout", cfg.Checkout.ConfirmLockTTL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	paymentGuard, err := inflight.NewRedis(rdb, "inflight:payment", cfg.Checkout.ConfirmLockTTL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	storage := func(owner string) (cart.Storage, error) {
		return cart.NewRedisStorage(rdb, owner, cfg.Checkout.CartTTL)
	}
	return storage, confirmGuard, paymentGuard, nil
}

// newRedisClient prefers a full URL and falls back to discrete settings.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.PoolSize = cfg.PoolSize
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}
