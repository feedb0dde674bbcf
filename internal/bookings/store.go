package bookings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/aws"
	"github.com/imrishuroy/go-spa-checkout/internal/idempotency"
)

var (
	// ErrDuplicateRequest means the request key was already used for a booking.
	ErrDuplicateRequest = apperrors.New(apperrors.CodeConflict, "request already processed")
	// ErrAlreadyPaid means a payment exists or the booking is no longer pending.
	ErrAlreadyPaid = apperrors.New(apperrors.CodeStateConflict, "booking already paid")
)

// Tables names the tables the store writes to.
type Tables struct {
	Bookings       string
	BookingsByUser string
	Payments       string
	Idempotency    string
	IdempotencyTTL time.Duration
}

// Store encapsulates operations on the bookings and payments tables.
type Store struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
	newID   func() string
}

func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// CreateWithItems atomically writes the booking with its items and, when
// nb.RequestKey is set, the confirm idempotency record. A reused request key
// cancels the whole transaction with ErrDuplicateRequest.
func (s *Store) CreateWithItems(ctx context.Context, nb NewBooking) (string, error) {
	if nb.UserID == "" {
		return "", errors.New("create booking: user id required")
	}
	if len(nb.Items) == 0 {
		return "", errors.New("create booking: at least one item required")
	}

	now := s.nowFunc().UTC()
	booking := Booking{
		BookingID:           s.newID(),
		UserID:              nb.UserID,
		PurchaseType:        nb.PurchaseType,
		Subtotal:            NewAmount(nb.Subtotal),
		PaymentMethod:       nb.PaymentMethod,
		DeliveryMethod:      nb.DeliveryMethod,
		AppointmentDatetime: nb.Appointment,
		PaymentStatus:       StatusPending,
		Items:               nb.Items,
		RequestKey:          nb.RequestKey,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if nb.Discount != nil {
		d := NewAmount(*nb.Discount)
		booking.DiscountAmount = &d
	}
	if nb.Total != nil {
		t := NewAmount(*nb.Total)
		booking.Total = &t
	}

	bookingMap, err := attributevalue.MarshalMap(booking)
	if err != nil {
		return "", fmt.Errorf("marshal booking item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tables.Bookings,
				Item:                bookingMap,
				ConditionExpression: awsString("attribute_not_exists(booking_id)"),
			},
		},
	}

	if nb.RequestKey != "" {
		rec := idempotency.NewRecord(idempotency.ScopeConfirm, nb.RequestKey, booking.BookingID, now, s.tables.IdempotencyTTL)
		recMap, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return "", fmt.Errorf("marshal idempotency item: %w", err)
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.tables.Idempotency,
				Item:                recMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && nb.RequestKey != "" && conditionFailedAt(tce, 1) {
			return "", fmt.Errorf("create booking: %w", ErrDuplicateRequest)
		}
		return "", fmt.Errorf("transact write: %w", err)
	}
	return booking.BookingID, nil
}

// Get fetches a booking by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, bookingID string) (*Booking, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tables.Bookings,
		Key: map[string]types.AttributeValue{
			"booking_id": &types.AttributeValueMemberS{Value: bookingID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var b Booking
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, fmt.Errorf("unmarshal booking: %w", err)
	}
	return &b, nil
}

// ListByUser returns a user's bookings ordered by appointment, soonest first.
// Purchases without an appointment sort last, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tables.Bookings,
		IndexName:              &s.tables.BookingsByUser,
		KeyConditionExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: awsBool(false),
	}

	var out []Booking
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query bookings: %w", err)
		}
		var batch []Booking
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal bookings: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AppointmentDatetime, out[j].AppointmentDatetime
		switch {
		case a != nil && b != nil:
			return a.Before(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out, nil
}

// RegisterPayment stores the payment and flips the booking to paid in one
// transaction, recording the amount actually charged and its discount on the
// booking. Either write failing its condition yields ErrAlreadyPaid.
func (s *Store) RegisterPayment(ctx context.Context, p Payment) error {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	paymentMap, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal payment item: %w", err)
	}

	paidAV, err := p.AmountPaid.MarshalDynamoDBAttributeValue()
	if err != nil {
		return fmt.Errorf("marshal amount paid: %w", err)
	}
	discountAV, err := p.DiscountApplied.MarshalDynamoDBAttributeValue()
	if err != nil {
		return fmt.Errorf("marshal discount applied: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tables.Payments,
				Item:                paymentMap,
				ConditionExpression: awsString("attribute_not_exists(booking_id)"),
			},
		},
		{
			Update: &types.Update{
				TableName: &s.tables.Bookings,
				Key: map[string]types.AttributeValue{
					"booking_id": &types.AttributeValueMemberS{Value: p.BookingID},
				},
				UpdateExpression:         awsString("SET #s = :paid, transaction_id = :tx, paid_at = :pa, updated_at = :ua, #t = :total, discount_amount = :disc"),
				ConditionExpression:      awsString("attribute_exists(booking_id) AND #s <> :paid"),
				ExpressionAttributeNames: map[string]string{"#s": "payment_status", "#t": "total"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":paid":  &types.AttributeValueMemberS{Value: StatusPaid},
					":tx":    &types.AttributeValueMemberS{Value: p.TransactionID},
					":pa":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
					":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
					":total": paidAV,
					":disc":  discountAV,
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && (conditionFailedAt(tce, 0) || conditionFailedAt(tce, 1)) {
			return fmt.Errorf("register payment: %w", ErrAlreadyPaid)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// GetPayment fetches the payment of a booking. Returns (nil, nil) if none.
func (s *Store) GetPayment(ctx context.Context, bookingID string) (*Payment, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tables.Payments,
		Key: map[string]types.AttributeValue{
			"booking_id": &types.AttributeValueMemberS{Value: bookingID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

func conditionFailedAt(tce *types.TransactionCanceledException, idx int) bool {
	if idx >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[idx].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
