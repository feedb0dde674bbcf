package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-spa-checkout/internal/aws"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/config"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "spa-checkout-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := context.Background()

	clients, err := aws.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		log.Error(ctx, "failed to init aws clients", err)
		os.Exit(1)
	}

	store := bookings.NewStore(clients.DynamoDB, bookings.Tables{
		Bookings:       cfg.Tables.Bookings,
		BookingsByUser: cfg.Tables.BookingsByUser,
		Payments:       cfg.Tables.Payments,
		Idempotency:    cfg.Tables.Idempotency,
		IdempotencyTTL: cfg.Tables.IdempotencyTTL,
	})
	p := NewProcessor(store, aws.NewMetricsEmitter(clients.CloudWatch, cfg.Metrics.Namespace), log)

	// RUN_LOCAL feeds a single message from SPA_LOCAL_SQS_BODY through the processor.
	if cfg.App.RunLocal {
		body := os.Getenv("SPA_LOCAL_SQS_BODY")
		if body == "" {
			log.Error(ctx, "SPA_LOCAL_SQS_BODY is empty", nil)
			os.Exit(1)
		}
		resp, err := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Error(ctx, "local message failed", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
