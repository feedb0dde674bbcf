package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/cart"
	"github.com/imrishuroy/go-spa-checkout/internal/inflight"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
)

var fixedNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	calls   []bookings.NewBooking
	err     error
	entered chan struct{}
	proceed chan struct{}
}

func (f *fakeBackend) CreateWithItems(_ context.Context, nb bookings.NewBooking) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, nb)
	n := len(f.calls)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.proceed != nil {
		<-f.proceed
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("booking-%d", n), nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	storage *cart.MemoryStorage
	backend *fakeBackend
	guard   inflight.Guard
	user    session.User
}

func newHarness() *harness {
	return &harness{
		storage: cart.NewMemoryStorage(),
		backend: &fakeBackend{},
		guard:   inflight.NewLocal(),
		user:    session.User{ID: "user-1", Email: "ana@example.com", Role: "client"},
	}
}

func (h *harness) open(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := Open(context.Background(), Deps{
		User:    h.user,
		Storage: h.storage,
		Backend: h.backend,
		Guard:   h.guard,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return o
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func appointmentIn(d time.Duration) *time.Time {
	at := fixedNow.Add(d)
	return &at
}

func readyServiceCheckout(t *testing.T, h *harness) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	o := h.open(t)
	require.NoError(t, o.AddService(ctx, cart.ServiceItem{ID: "1", Title: "Masaje", Price: dec("40000")}))
	require.NoError(t, o.SetPaymentMethod(ctx, "debit_card"))
	require.NoError(t, o.SetAppointment(ctx, appointmentIn(72*time.Hour), "pro-7"))
	return o
}

func TestServiceSummaryAppliesCardDiscount(t *testing.T) {
	o := readyServiceCheckout(t, newHarness())

	s := o.Summary()
	assert.Equal(t, TabServices, s.Tab)
	assert.True(t, s.Subtotal.Equal(dec("40000")))
	assert.True(t, s.Discount.Equal(dec("6000")))
	assert.True(t, s.Total.Equal(dec("34000")))
	assert.True(t, s.Ready)
	assert.Empty(t, s.Blocker)
}

func TestProductSummaryAppliesCashDiscount(t *testing.T) {
	ctx := context.Background()
	o := newHarness().open(t)

	require.NoError(t, o.SelectTab(ctx, "products"))
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Name: "Crema", Price: dec("10000"), Quantity: 3, Stock: 10}))
	require.NoError(t, o.SetPaymentMethod(ctx, "cash"))

	s := o.Summary()
	assert.Equal(t, TabProducts, s.Tab)
	assert.True(t, s.Subtotal.Equal(dec("30000")))
	assert.True(t, s.Discount.Equal(dec("3000")))
	assert.True(t, s.Total.Equal(dec("27000")))
	assert.True(t, s.Ready)
}

func TestBothTabsRepricedOnPaymentChange(t *testing.T) {
	ctx := context.Background()
	o := newHarness().open(t)
	require.NoError(t, o.AddService(ctx, cart.ServiceItem{ID: "s1", Price: dec("1000")}))
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Price: dec("1000"), Stock: 1}))

	require.NoError(t, o.SetPaymentMethod(ctx, "cash"))
	s := o.Summary()
	assert.True(t, s.Discount.IsZero())
	assert.True(t, s.Other.Discount.Equal(dec("100")), "inactive product tab must already be repriced")

	require.NoError(t, o.SetPaymentMethod(ctx, "card"))
	s = o.Summary()
	assert.True(t, s.Discount.Equal(dec("150")))
	assert.True(t, s.Other.Discount.IsZero())
}

func TestSubtotalFollowsCartMutations(t *testing.T) {
	ctx := context.Background()
	o := newHarness().open(t)
	require.NoError(t, o.SelectTab(ctx, "products"))
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Price: dec("10000"), Stock: 5}))
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Price: dec("10000"), Stock: 5}))
	assert.True(t, o.Summary().Subtotal.Equal(dec("20000")))

	require.NoError(t, o.SetProductQuantity(ctx, "p1", 0))
	s := o.Summary()
	assert.True(t, s.Subtotal.IsZero())
	assert.Equal(t, BlockerPaymentMethod, s.Blocker)

	require.NoError(t, o.SetPaymentMethod(ctx, "cash"))
	assert.Equal(t, BlockerCartEmpty, o.Summary().Blocker)
}

func TestStateSurvivesAcrossRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first := readyServiceCheckout(t, h)
	require.NoError(t, first.SetDeliveryMethod(ctx, "home_visit"))

	second := h.open(t)
	form := second.Form()
	assert.Equal(t, "debit_card", string(form.PaymentMethod))
	assert.Equal(t, "home_visit", form.DeliveryMethod)
	assert.Equal(t, "pro-7", form.ProfessionalID)
	require.NotNil(t, form.Appointment)
	assert.True(t, form.Appointment.Equal(fixedNow.Add(72*time.Hour)))
	assert.True(t, second.Summary().Total.Equal(dec("34000")))
}

func TestCorruptFormFallsBackToDefaults(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.storage.Save(context.Background(), FormKey, []byte("{oops")))

	o := h.open(t)
	assert.Equal(t, TabServices, o.Form().Tab)
	assert.False(t, o.Form().PaymentMethod.IsSet())
}

func TestSelectTabRejectsUnknown(t *testing.T) {
	o := newHarness().open(t)
	err := o.SelectTab(context.Background(), "gift-cards")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestConfirmValidationNeverReachesBackend(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, h *harness) *Orchestrator
		code    apperrors.Code
		message string
	}{
		{
			name: "unauthenticated",
			setup: func(t *testing.T, h *harness) *Orchestrator {
				h.user = session.User{}
				return readyServiceCheckout(t, h)
			},
			code:    apperrors.CodeUnauthorized,
			message: blockerMessages[BlockerUnauthenticated],
		},
		{
			name: "no payment method",
			setup: func(t *testing.T, h *harness) *Orchestrator {
				o := readyServiceCheckout(t, h)
				require.NoError(t, o.SetPaymentMethod(context.Background(), ""))
				return o
			},
			code:    apperrors.CodeValidation,
			message: blockerMessages[BlockerPaymentMethod],
		},
		{
			name: "empty cart",
			setup: func(t *testing.T, h *harness) *Orchestrator {
				o := readyServiceCheckout(t, h)
				require.NoError(t, o.RemoveService(context.Background(), "1"))
				return o
			},
			code:    apperrors.CodeValidation,
			message: blockerMessages[BlockerCartEmpty],
		},
		{
			name: "appointment missing",
			setup: func(t *testing.T, h *harness) *Orchestrator {
				o := readyServiceCheckout(t, h)
				require.NoError(t, o.SetAppointment(context.Background(), nil, ""))
				return o
			},
			code:    apperrors.CodeValidation,
			message: blockerMessages[BlockerAppointmentMissing],
		},
		{
			name: "appointment under 48h",
			setup: func(t *testing.T, h *harness) *Orchestrator {
				o := readyServiceCheckout(t, h)
				require.NoError(t, o.SetAppointment(context.Background(), appointmentIn(47*time.Hour), ""))
				return o
			},
			code:    apperrors.CodeValidation,
			message: blockerMessages[BlockerAppointmentTooSoon],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			o := tt.setup(t, h)

			_, err := o.Confirm(context.Background(), "")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, tt.message, apperrors.As(err).Message())
			assert.Zero(t, h.backend.callCount())
		})
	}
}

func TestConfirmExactlyFortyEightHoursIsAllowed(t *testing.T) {
	h := newHarness()
	o := readyServiceCheckout(t, h)
	require.NoError(t, o.SetAppointment(context.Background(), appointmentIn(MinServiceLeadTime), ""))

	_, err := o.Confirm(context.Background(), "")
	require.NoError(t, err)
}

func TestConfirmServicesPersistsSubtotalAndClearsCart(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	o := readyServiceCheckout(t, h)
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Price: dec("500"), Stock: 1}))

	conf, err := o.Confirm(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "booking-1", conf.BookingID)
	assert.True(t, conf.Summary.Total.Equal(dec("34000")))

	require.Equal(t, 1, h.backend.callCount())
	nb := h.backend.calls[0]
	assert.Equal(t, "user-1", nb.UserID)
	assert.Equal(t, "service", nb.PurchaseType)
	assert.True(t, nb.Subtotal.Equal(dec("40000")))
	assert.Nil(t, nb.Discount)
	assert.Equal(t, "debit_card", nb.PaymentMethod)
	assert.Equal(t, DefaultServiceDelivery, nb.DeliveryMethod)
	assert.Equal(t, "req-1", nb.RequestKey)
	require.NotNil(t, nb.Appointment)
	require.Len(t, nb.Items, 1)
	assert.Equal(t, "1", nb.Items[0].ServiceID)
	assert.Equal(t, "pro-7", nb.Items[0].ProfessionalID)

	raw, err := h.storage.Load(ctx, cart.ServicesKey)
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Equal(t, 1, h.open(t).Summary().Other.Count, "product cart is untouched")
}

func TestConfirmProductsPersistsAllAmounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	o := h.open(t)
	require.NoError(t, o.SelectTab(ctx, "products"))
	require.NoError(t, o.AddProduct(ctx, cart.ProductItem{ID: "p1", Name: "Crema", Price: dec("10000"), Quantity: 3, Stock: 3}))
	require.NoError(t, o.SetPaymentMethod(ctx, "cash"))

	_, err := o.Confirm(ctx, "")
	require.NoError(t, err)

	nb := h.backend.calls[0]
	assert.Equal(t, "product", nb.PurchaseType)
	assert.Equal(t, bookings.DeliveryProductPurchase, nb.DeliveryMethod)
	require.NotNil(t, nb.Discount)
	assert.True(t, nb.Discount.Equal(dec("3000")))
	assert.True(t, nb.Total.Equal(dec("27000")))
	assert.Nil(t, nb.Appointment)
	assert.Equal(t, 3, nb.Items[0].Quantity)
	assert.Zero(t, o.Summary().Count)
}

func TestConfirmBackendFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.backend.err = errors.New(`duplicate key value violates unique constraint "bookings_slot"`)
	o := readyServiceCheckout(t, h)

	_, err := o.Confirm(ctx, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDependency, apperrors.CodeOf(err))
	assert.Equal(t, `duplicate key value violates unique constraint "bookings_slot"`, apperrors.As(err).Message())
	assert.Equal(t, 1, h.open(t).Summary().Count)

	// guard released: a retry reaches the backend again
	h.backend.err = nil
	_, err = o.Confirm(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, h.backend.callCount())
}

func TestConfirmPassesThroughTypedBackendErrors(t *testing.T) {
	h := newHarness()
	h.backend.err = bookings.ErrDuplicateRequest
	o := readyServiceCheckout(t, h)

	_, err := o.Confirm(context.Background(), "req-1")
	assert.ErrorIs(t, err, bookings.ErrDuplicateRequest)
}

func assertSingleBackendCall(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	h.backend.entered = make(chan struct{}, 1)
	h.backend.proceed = make(chan struct{})

	first := readyServiceCheckout(t, h)
	second := h.open(t)

	done := make(chan error, 1)
	go func() {
		_, err := first.Confirm(ctx, "")
		done <- err
	}()
	<-h.backend.entered

	_, err := second.Confirm(ctx, "")
	assert.ErrorIs(t, err, ErrConfirmInFlight)
	assert.Equal(t, apperrors.CodeInFlight, apperrors.CodeOf(err))

	close(h.backend.proceed)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.backend.callCount())
}

func TestDoubleConfirmCallsBackendOnce(t *testing.T) {
	assertSingleBackendCall(t, newHarness())
}

func TestDoubleConfirmAcrossInstancesWithRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard, err := inflight.NewRedis(client, "checkout", time.Minute, nil)
	require.NoError(t, err)

	h := newHarness()
	h.guard = guard
	assertSingleBackendCall(t, h)
	assert.False(t, mr.Exists("checkout:confirm:user-1:services"))
}

func TestConfirmFromStaleCartDoesNotBookTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first := readyServiceCheckout(t, h)
	second := h.open(t)
	require.True(t, second.Summary().Ready)

	conf, err := first.Confirm(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "booking-1", conf.BookingID)

	_, err = second.Confirm(ctx, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.Equal(t, 1, h.backend.callCount())
	assert.Zero(t, second.Summary().Count)
}

func TestConfirmRejectsTabSwitchedElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	stale := readyServiceCheckout(t, h)

	other := h.open(t)
	require.NoError(t, other.SelectTab(ctx, "products"))

	_, err := stale.Confirm(ctx, "")
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	assert.Zero(t, h.backend.callCount())
}

func TestOpenRequiresCollaborators(t *testing.T) {
	_, err := Open(context.Background(), Deps{Backend: &fakeBackend{}})
	assert.Error(t, err)
	_, err = Open(context.Background(), Deps{Storage: cart.NewMemoryStorage()})
	assert.Error(t, err)
}
