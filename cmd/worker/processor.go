package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-spa-checkout/internal/aws"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
)

// Metric names published per event.
const (
	MetricBookingsCreated    = "BookingsCreated"
	MetricBookedSubtotal     = "BookedSubtotal"
	MetricPaymentsRegistered = "PaymentsRegistered"
	MetricAmountCollected    = "AmountCollected"
	MetricDiscountGranted    = "DiscountGranted"
)

// BookingReader is the read side of the bookings store.
type BookingReader interface {
	Get(ctx context.Context, bookingID string) (*bookings.Booking, error)
	GetPayment(ctx context.Context, bookingID string) (*bookings.Payment, error)
}

// MetricsSink receives the datums derived from one event.
type MetricsSink interface {
	Emit(ctx context.Context, data ...aws.Datum) error
}

// errPermanent marks messages that will never succeed; they are dropped
// instead of being retried.
var errPermanent = errors.New("permanent failure")

// Processor turns booking events into CloudWatch metrics.
type Processor struct {
	bookings BookingReader
	metrics  MetricsSink
	log      *logger.Logger
}

func NewProcessor(reader BookingReader, metrics MetricsSink, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{bookings: reader, metrics: metrics, log: log}
}

// Handle processes a batch and reports only the failed messages, so SQS
// redelivers those and nothing else.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		msgCtx := p.log.WithField(ctx, "message_id", rec.MessageId)
		err := p.processMessage(msgCtx, rec)
		switch {
		case err == nil:
		case errors.Is(err, errPermanent):
			p.log.Warn(msgCtx, "dropping message", err)
		default:
			p.log.Error(msgCtx, "message will be retried", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var evt bookings.Event
	if err := json.Unmarshal([]byte(rec.Body), &evt); err != nil {
		return fmt.Errorf("%w: invalid message body: %v", errPermanent, err)
	}
	if evt.BookingID == "" {
		return fmt.Errorf("%w: event without booking id", errPermanent)
	}
	ctx = p.log.WithBookingID(ctx, evt.BookingID)

	var data []aws.Datum
	switch evt.Type {
	case bookings.EventBookingCreated:
		b, err := p.booking(ctx, evt.BookingID)
		if err != nil {
			return err
		}
		dims := map[string]string{"PurchaseType": b.PurchaseType}
		data = []aws.Datum{
			{Name: MetricBookingsCreated, Value: 1, Dimensions: dims},
			{Name: MetricBookedSubtotal, Value: b.Subtotal.InexactFloat64(), Unit: cwtypes.StandardUnitNone, Dimensions: dims},
		}
	case bookings.EventPaymentRegistered:
		b, err := p.booking(ctx, evt.BookingID)
		if err != nil {
			return err
		}
		payment, err := p.bookings.GetPayment(ctx, evt.BookingID)
		if err != nil {
			return fmt.Errorf("fetch payment: %w", err)
		}
		if payment == nil {
			return fmt.Errorf("payment not found for booking %s", evt.BookingID)
		}
		dims := map[string]string{"PurchaseType": b.PurchaseType}
		data = []aws.Datum{
			{Name: MetricPaymentsRegistered, Value: 1, Dimensions: dims},
			{Name: MetricAmountCollected, Value: payment.AmountPaid.InexactFloat64(), Unit: cwtypes.StandardUnitNone, Dimensions: dims},
			{Name: MetricDiscountGranted, Value: payment.DiscountApplied.InexactFloat64(), Unit: cwtypes.StandardUnitNone, Dimensions: dims},
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", errPermanent, evt.Type)
	}

	if err := p.metrics.Emit(ctx, data...); err != nil {
		return fmt.Errorf("emit metrics: %w", err)
	}
	p.log.Info(ctx, "processed "+evt.Type)
	return nil
}

// booking re-reads the booking. A missing one is retried since the event
// may arrive before a read replica catches up.
func (p *Processor) booking(ctx context.Context, bookingID string) (*bookings.Booking, error) {
	b, err := p.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("fetch booking: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("booking not found: %s", bookingID)
	}
	return b, nil
}
