package bookings

import "time"

// Event types published after successful writes.
const (
	EventBookingCreated    = "booking.created"
	EventPaymentRegistered = "payment.registered"
)

// Event is the queue message body. Consumers re-read the booking for details.
type Event struct {
	Type         string    `json:"type"`
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	PurchaseType string    `json:"purchase_type,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
