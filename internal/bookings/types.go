package bookings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// Delivery method recorded for product purchases.
const DeliveryProductPurchase = "product_purchase"

// Booking represents the item stored in the bookings DynamoDB table.
// Product purchases are bookings without an appointment.
type Booking struct {
	BookingID           string     `dynamodbav:"booking_id" json:"id"` // PK
	UserID              string     `dynamodbav:"user_id" json:"user_id"`
	PurchaseType        string     `dynamodbav:"purchase_type" json:"purchase_type"` // service | product
	Subtotal            Amount     `dynamodbav:"subtotal" json:"subtotal"`
	DiscountAmount      *Amount    `dynamodbav:"discount_amount,omitempty" json:"discount_amount,omitempty"`
	Total               *Amount    `dynamodbav:"total,omitempty" json:"total,omitempty"`
	PaymentMethod       string     `dynamodbav:"payment_method" json:"payment_method"`
	DeliveryMethod      string     `dynamodbav:"delivery_method,omitempty" json:"delivery_method,omitempty"`
	AppointmentDatetime *time.Time `dynamodbav:"appointment_datetime,omitempty" json:"appointment_datetime,omitempty"`
	PaymentStatus       string     `dynamodbav:"payment_status" json:"payment_status"`
	Items               []Item     `dynamodbav:"items" json:"items"`
	RequestKey          string     `dynamodbav:"request_key,omitempty" json:"-"`
	TransactionID       string     `dynamodbav:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	PaidAt              *time.Time `dynamodbav:"paid_at,omitempty" json:"paid_at,omitempty"`
	CreatedAt           time.Time  `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `dynamodbav:"updated_at" json:"updated_at"`
}

func (b Booking) IsPaid() bool { return b.PaymentStatus == StatusPaid }

// Item is one booked service or purchased product, priced at purchase time.
type Item struct {
	ServiceID       string `dynamodbav:"service_id,omitempty" json:"service_id,omitempty"`
	ProductID       string `dynamodbav:"product_id,omitempty" json:"product_id,omitempty"`
	ProfessionalID  string `dynamodbav:"professional_id,omitempty" json:"professional_id,omitempty"`
	Name            string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity        int    `dynamodbav:"quantity" json:"quantity"`
	PriceAtPurchase Amount `dynamodbav:"price_at_purchase" json:"price_at_purchase"`
}

// Payment is written exactly once per settled booking. The booking id is the PK,
// so a second payment for the same booking cannot be stored.
type Payment struct {
	BookingID       string    `dynamodbav:"booking_id" json:"booking_id"`
	UserID          string    `dynamodbav:"user_id" json:"user_id"`
	AmountPaid      Amount    `dynamodbav:"amount_paid" json:"amount_paid"`
	DiscountApplied Amount    `dynamodbav:"discount_applied" json:"discount_applied"`
	PaymentMethod   string    `dynamodbav:"payment_method" json:"payment_method"`
	TransactionID   string    `dynamodbav:"transaction_id" json:"transaction_id"`
	CreatedAt       time.Time `dynamodbav:"created_at" json:"created_at"`
}

// NewBooking is the create-order payload. Discount and Total are nil when the
// discount is left to reconciliation.
type NewBooking struct {
	UserID         string
	PurchaseType   string
	Subtotal       decimal.Decimal
	Discount       *decimal.Decimal
	Total          *decimal.Decimal
	PaymentMethod  string
	DeliveryMethod string
	Appointment    *time.Time
	Items          []Item
	RequestKey     string
}
