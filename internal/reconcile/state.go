package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/pricing"
)

// State is where a booking stands in the payment flow.
type State string

const (
	StatePaid           State = "paid"
	StateSettleInPerson State = "settle_in_person"
	StatePayable        State = "payable"
	StateExpired        State = "expired"
)

const (
	// PaymentWindow closes online card payment this long before the appointment.
	PaymentWindow = 24 * time.Hour
	// EarlyPaymentWindow earns pricing.EarlyPaymentRate when paying at least this early.
	EarlyPaymentWindow = 48 * time.Hour
)

// StateOf classifies a booking at now. Only card bookings are paid online;
// cash and other methods are settled at the spa.
func StateOf(b bookings.Booking, now time.Time) State {
	if b.IsPaid() {
		return StatePaid
	}
	if pricing.ParsePaymentMethod(b.PaymentMethod) != pricing.PaymentDebitCard {
		return StateSettleInPerson
	}
	if b.AppointmentDatetime == nil {
		return StatePayable
	}
	if b.AppointmentDatetime.Sub(now) >= PaymentWindow {
		return StatePayable
	}
	return StateExpired
}

// Quote is the amount due if the booking were paid at the quoted time.
type Quote struct {
	HoursRemaining *float64        `json:"hours_remaining,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	AmountDue      decimal.Decimal `json:"amount_due"`
}

// QuoteFor applies the early-payment tier to the stored subtotal, independent
// of any discount computed when the booking was created.
func QuoteFor(b bookings.Booking, now time.Time) Quote {
	strategy := pricing.NoDiscount
	q := Quote{Subtotal: b.Subtotal.Decimal}

	if b.AppointmentDatetime != nil {
		remaining := b.AppointmentDatetime.Sub(now)
		hours := remaining.Hours()
		q.HoursRemaining = &hours
		if remaining >= EarlyPaymentWindow {
			strategy = pricing.EarlyPayment
		}
	}

	res := strategy.Calculate(q.Subtotal)
	q.Discount = res.DiscountAmount
	q.AmountDue = res.FinalTotal
	return q
}
