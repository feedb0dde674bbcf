package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/inflight"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
	"github.com/imrishuroy/go-spa-checkout/internal/pricing"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
)

var (
	ErrUnauthenticated   = apperrors.New(apperrors.CodeUnauthorized, "sign in to pay for your booking")
	ErrBookingNotFound   = apperrors.New(apperrors.CodeNotFound, "booking not found")
	ErrNotOwner          = apperrors.New(apperrors.CodeForbidden, "booking belongs to another user")
	ErrPaymentInFlight   = apperrors.New(apperrors.CodeInFlight, "a payment is already being processed")
	ErrSettleInPerson    = apperrors.New(apperrors.CodeStateConflict, "this booking is paid at the spa")
	ErrPaymentWindowGone = apperrors.New(apperrors.CodeStateConflict, "online payment closes 24 hours before the appointment")
)

// Store is the persistence the reconciler needs.
type Store interface {
	Get(ctx context.Context, bookingID string) (*bookings.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]bookings.Booking, error)
	RegisterPayment(ctx context.Context, p bookings.Payment) error
}

type Reconciler struct {
	store   Store
	guard   inflight.Guard
	log     *logger.Logger
	nowFunc func() time.Time
	newTxID func() string
}

func New(store Store, guard inflight.Guard, log *logger.Logger) *Reconciler {
	if guard == nil {
		guard = inflight.NewLocal()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		store:   store,
		guard:   guard,
		log:     log,
		nowFunc: time.Now,
		newTxID: func() string { return "sim-" + uuid.NewString() },
	}
}

// WithClock replaces the time source used for states and quotes.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	if now != nil {
		r.nowFunc = now
	}
	return r
}

// View is a booking with its payment state and a quote at the time of listing.
type View struct {
	bookings.Booking
	State State  `json:"state"`
	Quote *Quote `json:"quote,omitempty"`
}

// List returns the user's bookings. Quotes are attached to payable ones only.
func (r *Reconciler) List(ctx context.Context, user session.User) ([]View, error) {
	if !user.Authenticated() {
		return nil, ErrUnauthenticated
	}
	list, err := r.store.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "could not load your bookings")
	}
	now := r.nowFunc()
	views := make([]View, 0, len(list))
	for _, b := range list {
		v := View{Booking: b, State: StateOf(b, now)}
		if v.State == StatePayable {
			q := QuoteFor(b, now)
			v.Quote = &q
		}
		views = append(views, v)
	}
	return views, nil
}

// Quote loads an owned booking and prices it as of now.
func (r *Reconciler) Quote(ctx context.Context, user session.User, bookingID string) (*View, error) {
	b, err := r.owned(ctx, user, bookingID)
	if err != nil {
		return nil, err
	}
	now := r.nowFunc()
	q := QuoteFor(*b, now)
	return &View{Booking: *b, State: StateOf(*b, now), Quote: &q}, nil
}

// Receipt describes a registered payment.
type Receipt struct {
	Payment bookings.Payment `json:"payment"`
	Quote   Quote            `json:"quote"`
}

// Pay settles a payable card booking. Only one payment per user runs at a time.
func (r *Reconciler) Pay(ctx context.Context, user session.User, bookingID string) (*Receipt, error) {
	if !user.Authenticated() {
		return nil, ErrUnauthenticated
	}

	release, err := r.guard.TryAcquire(ctx, "pay:"+user.ID)
	if err != nil {
		if errors.Is(err, inflight.ErrBusy) {
			return nil, ErrPaymentInFlight
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "could not start payment, try again")
	}
	defer release()

	b, err := r.owned(ctx, user, bookingID)
	if err != nil {
		return nil, err
	}

	now := r.nowFunc()
	switch StateOf(*b, now) {
	case StatePaid:
		return nil, bookings.ErrAlreadyPaid
	case StateSettleInPerson:
		return nil, ErrSettleInPerson
	case StateExpired:
		return nil, ErrPaymentWindowGone
	}

	quote := QuoteFor(*b, now)
	payment := bookings.Payment{
		BookingID:       b.BookingID,
		UserID:          user.ID,
		AmountPaid:      bookings.NewAmount(quote.AmountDue),
		DiscountApplied: bookings.NewAmount(quote.Discount),
		PaymentMethod:   string(pricing.PaymentDebitCard),
		TransactionID:   r.newTxID(),
		CreatedAt:       now.UTC(),
	}

	ctx = r.log.WithBookingID(ctx, b.BookingID)
	if err := r.store.RegisterPayment(ctx, payment); err != nil {
		r.log.Error(ctx, "register payment failed", err)
		if apperrors.As(err) != nil {
			return nil, err
		}
		return nil, apperrors.Dependency(err)
	}
	r.log.Info(r.log.WithField(ctx, "amount_paid", quote.AmountDue.String()), "payment registered")

	return &Receipt{Payment: payment, Quote: quote}, nil
}

func (r *Reconciler) owned(ctx context.Context, user session.User, bookingID string) (*bookings.Booking, error) {
	if !user.Authenticated() {
		return nil, ErrUnauthenticated
	}
	b, err := r.store.Get(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "could not load booking")
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	if b.UserID != user.ID {
		return nil, ErrNotOwner
	}
	return b, nil
}
