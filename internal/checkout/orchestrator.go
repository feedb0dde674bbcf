package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/cart"
	"github.com/imrishuroy/go-spa-checkout/internal/inflight"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
	"github.com/imrishuroy/go-spa-checkout/internal/pricing"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
)

// MinServiceLeadTime is how far ahead a service appointment must be booked.
const MinServiceLeadTime = 48 * time.Hour

// DefaultServiceDelivery is recorded when the form leaves delivery unset.
const DefaultServiceDelivery = "in_store"

// Reasons a checkout cannot be confirmed yet.
const (
	BlockerUnauthenticated    = "unauthenticated"
	BlockerCartEmpty          = "cart_empty"
	BlockerPaymentMethod      = "payment_method_required"
	BlockerAppointmentMissing = "appointment_required"
	BlockerAppointmentTooSoon = "appointment_too_soon"
)

var blockerMessages = map[string]string{
	BlockerUnauthenticated:    "sign in to confirm your order",
	BlockerCartEmpty:          "your cart is empty",
	BlockerPaymentMethod:      "select a payment method",
	BlockerAppointmentMissing: "select an appointment date and time",
	BlockerAppointmentTooSoon: "appointments must be booked at least 48 hours in advance",
}

// ErrConfirmInFlight is returned when the same checkout is already being confirmed.
var ErrConfirmInFlight = apperrors.New(apperrors.CodeInFlight, "your order is already being processed")

// Backend persists a confirmed checkout as one atomic write.
type Backend interface {
	CreateWithItems(ctx context.Context, nb bookings.NewBooking) (string, error)
}

// Deps wires an Orchestrator for one request.
type Deps struct {
	User    session.User
	Storage cart.Storage
	Backend Backend
	Guard   inflight.Guard
	Logger  *logger.Logger
	Now     func() time.Time
}

// Orchestrator drives one checkout page: both carts, their pricing contexts
// and the form. It is built per request and is not safe for concurrent use;
// the guard serializes confirmations across requests.
type Orchestrator struct {
	user     session.User
	storage  cart.Storage
	backend  Backend
	guard    inflight.Guard
	log      *logger.Logger
	nowFunc  func() time.Time
	services *cart.ServiceCart
	products *cart.ProductCart
	svcCtx   *pricing.Context
	prodCtx  *pricing.Context
	form     Form
}

// Open loads the persisted carts and form. Unreadable state starts empty.
func Open(ctx context.Context, deps Deps) (*Orchestrator, error) {
	if deps.Storage == nil {
		return nil, errors.New("checkout: storage required")
	}
	if deps.Backend == nil {
		return nil, errors.New("checkout: backend required")
	}
	if deps.Guard == nil {
		deps.Guard = inflight.NewLocal()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	o := &Orchestrator{
		user:     deps.User,
		storage:  deps.Storage,
		backend:  deps.Backend,
		guard:    deps.Guard,
		log:      deps.Logger,
		nowFunc:  deps.Now,
		services: cart.LoadServices(ctx, deps.Storage, deps.Logger),
		products: cart.LoadProducts(ctx, deps.Storage, deps.Logger),
		svcCtx:   pricing.NewContext(pricing.NoDiscount),
		prodCtx:  pricing.NewContext(pricing.NoDiscount),
		form:     loadForm(ctx, deps.Storage, deps.Logger),
	}
	o.refresh()
	return o, nil
}

// refresh re-derives both strategies from the current payment method and
// pushes fresh subtotals into both contexts.
func (o *Orchestrator) refresh() {
	method := o.form.PaymentMethod
	o.svcCtx.SetStrategy(pricing.StrategyFor(pricing.PurchaseService, method))
	o.prodCtx.SetStrategy(pricing.StrategyFor(pricing.PurchaseProduct, method))
	o.svcCtx.SetSubtotal(o.services.Subtotal())
	o.prodCtx.SetSubtotal(o.products.Subtotal())
}

func (o *Orchestrator) Form() Form { return o.form }

// reload re-reads both carts and the form from storage.
func (o *Orchestrator) reload(ctx context.Context) {
	o.services = cart.LoadServices(ctx, o.storage, o.log)
	o.products = cart.LoadProducts(ctx, o.storage, o.log)
	o.form = loadForm(ctx, o.storage, o.log)
	o.refresh()
}

func (o *Orchestrator) updateForm(ctx context.Context, mutate func(*Form)) error {
	next := o.form
	mutate(&next)
	if err := saveForm(ctx, o.storage, next); err != nil {
		return err
	}
	o.form = next
	o.refresh()
	return nil
}

func (o *Orchestrator) SelectTab(ctx context.Context, raw string) error {
	tab, err := ParseTab(raw)
	if err != nil {
		return err
	}
	return o.updateForm(ctx, func(f *Form) { f.Tab = tab })
}

func (o *Orchestrator) SetPaymentMethod(ctx context.Context, raw string) error {
	method := pricing.ParsePaymentMethod(raw)
	return o.updateForm(ctx, func(f *Form) { f.PaymentMethod = method })
}

func (o *Orchestrator) SetDeliveryMethod(ctx context.Context, method string) error {
	return o.updateForm(ctx, func(f *Form) { f.DeliveryMethod = method })
}

// SetAppointment stores the requested slot. The lead time is checked on confirm.
func (o *Orchestrator) SetAppointment(ctx context.Context, at *time.Time, professionalID string) error {
	var slot *time.Time
	if at != nil {
		utc := at.UTC()
		slot = &utc
	}
	return o.updateForm(ctx, func(f *Form) {
		f.Appointment = slot
		f.ProfessionalID = professionalID
	})
}

func (o *Orchestrator) AddService(ctx context.Context, item cart.ServiceItem) error {
	defer o.refresh()
	return o.services.Add(ctx, item)
}

func (o *Orchestrator) RemoveService(ctx context.Context, id cart.ItemID) error {
	defer o.refresh()
	return o.services.Remove(ctx, id)
}

func (o *Orchestrator) AddProduct(ctx context.Context, item cart.ProductItem) error {
	defer o.refresh()
	return o.products.Add(ctx, item)
}

func (o *Orchestrator) SetProductQuantity(ctx context.Context, id cart.ItemID, n int) error {
	defer o.refresh()
	return o.products.SetQuantity(ctx, id, n)
}

func (o *Orchestrator) RemoveProduct(ctx context.Context, id cart.ItemID) error {
	defer o.refresh()
	return o.products.Remove(ctx, id)
}

// blocker returns the first reason the active tab cannot be confirmed, or "".
func (o *Orchestrator) blocker(tab Tab) string {
	if !o.user.Authenticated() {
		return BlockerUnauthenticated
	}
	if !o.form.PaymentMethod.IsSet() {
		return BlockerPaymentMethod
	}
	if o.count(tab) == 0 {
		return BlockerCartEmpty
	}
	if tab == TabServices {
		if o.form.Appointment == nil {
			return BlockerAppointmentMissing
		}
		if o.form.Appointment.Before(o.nowFunc().Add(MinServiceLeadTime)) {
			return BlockerAppointmentTooSoon
		}
	}
	return ""
}

func (o *Orchestrator) count(tab Tab) int {
	if tab == TabProducts {
		return o.products.Len()
	}
	return o.services.Len()
}

func (o *Orchestrator) pricingFor(tab Tab) *pricing.Context {
	if tab == TabProducts {
		return o.prodCtx
	}
	return o.svcCtx
}

// Totals are the priced amounts of one tab.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Strategy string          `json:"strategy"`
}

func (o *Orchestrator) totals(tab Tab) Totals {
	pc := o.pricingFor(tab)
	res := pc.CalculateTotal()
	return Totals{
		Subtotal: pc.Subtotal(),
		Discount: res.DiscountAmount,
		Total:    res.FinalTotal,
		Count:    o.count(tab),
		Strategy: pc.Strategy().Name(),
	}
}

// Summary is what the checkout page renders for the active tab.
type Summary struct {
	Totals
	Tab     Tab    `json:"tab"`
	Items   any    `json:"items"`
	Ready   bool   `json:"ready"`
	Blocker string `json:"blocker,omitempty"`
	Message string `json:"message,omitempty"`
	Form    Form   `json:"form"`

	// Other carries the inactive tab's totals so a tab switch shows
	// correct numbers without another round trip.
	Other Totals `json:"other"`
}

func (o *Orchestrator) Summary() Summary {
	tab := o.form.Tab
	other := TabProducts
	if tab == TabProducts {
		other = TabServices
	}

	s := Summary{
		Tab:    tab,
		Totals: o.totals(tab),
		Form:   o.form,
		Other:  o.totals(other),
	}
	if tab == TabProducts {
		s.Items = o.products.Items()
	} else {
		s.Items = o.services.Items()
	}
	s.Blocker = o.blocker(tab)
	s.Ready = s.Blocker == ""
	s.Message = blockerMessages[s.Blocker]
	return s
}

// Confirmation is the result of a successful Confirm.
type Confirmation struct {
	BookingID string  `json:"booking_id"`
	Summary   Summary `json:"summary"`
}

// Confirm validates the active tab, then submits it to the backend exactly
// once. On success the tab's cart is cleared; on failure it is left intact.
func (o *Orchestrator) Confirm(ctx context.Context, requestKey string) (*Confirmation, error) {
	o.refresh()
	tab := o.form.Tab
	summary := o.Summary()
	if summary.Blocker != "" {
		code := apperrors.CodeValidation
		if summary.Blocker == BlockerUnauthenticated {
			code = apperrors.CodeUnauthorized
		}
		return nil, apperrors.New(code, summary.Message)
	}

	release, err := o.guard.TryAcquire(ctx, fmt.Sprintf("confirm:%s:%s", o.user.ID, tab))
	if err != nil {
		if errors.Is(err, inflight.ErrBusy) {
			return nil, ErrConfirmInFlight
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "could not start confirmation, try again")
	}
	defer release()

	// An earlier confirmation may have emptied this cart while we held stale state.
	o.reload(ctx)
	summary = o.Summary()
	if summary.Tab != tab {
		return nil, apperrors.New(apperrors.CodeConflict, "your checkout changed, review it and confirm again")
	}
	if summary.Blocker != "" {
		return nil, apperrors.New(apperrors.CodeValidation, summary.Message)
	}

	payload := o.payload(tab, requestKey)
	bookingID, err := o.backend.CreateWithItems(ctx, payload)
	if err != nil {
		o.log.Error(ctx, "create booking failed", err)
		if apperrors.As(err) != nil {
			return nil, err
		}
		return nil, apperrors.Dependency(err)
	}

	ctx = o.log.WithBookingID(ctx, bookingID)
	if err := o.clear(ctx, tab); err != nil {
		o.log.Warn(ctx, "booking created but cart not cleared", err)
	}
	o.refresh()
	o.log.Info(ctx, "checkout confirmed")

	return &Confirmation{BookingID: bookingID, Summary: summary}, nil
}

func (o *Orchestrator) clear(ctx context.Context, tab Tab) error {
	if tab == TabProducts {
		return o.products.Clear(ctx)
	}
	return o.services.Clear(ctx)
}

// payload builds the create-order call. Services persist the subtotal only
// and leave the discount to reconciliation; products persist all amounts.
func (o *Orchestrator) payload(tab Tab, requestKey string) bookings.NewBooking {
	nb := bookings.NewBooking{
		UserID:         o.user.ID,
		PurchaseType:   string(tab.purchaseType()),
		PaymentMethod:  string(o.form.PaymentMethod),
		DeliveryMethod: o.form.DeliveryMethod,
		RequestKey:     requestKey,
	}

	if tab == TabProducts {
		res := o.prodCtx.CalculateTotal()
		nb.Subtotal = o.prodCtx.Subtotal()
		nb.Discount = &res.DiscountAmount
		nb.Total = &res.FinalTotal
		if nb.DeliveryMethod == "" {
			nb.DeliveryMethod = bookings.DeliveryProductPurchase
		}
		for _, p := range o.products.Items() {
			nb.Items = append(nb.Items, bookings.Item{
				ProductID:       p.ID.String(),
				Name:            p.Name,
				Quantity:        p.Quantity,
				PriceAtPurchase: bookings.NewAmount(p.Price),
			})
		}
		return nb
	}

	nb.Subtotal = o.svcCtx.Subtotal()
	nb.Appointment = o.form.Appointment
	if nb.DeliveryMethod == "" {
		nb.DeliveryMethod = DefaultServiceDelivery
	}
	for _, s := range o.services.Items() {
		nb.Items = append(nb.Items, bookings.Item{
			ServiceID:       s.ID.String(),
			ProfessionalID:  o.form.ProfessionalID,
			Name:            s.Title,
			Quantity:        1,
			PriceAtPurchase: bookings.NewAmount(s.Price),
		})
	}
	return nb
}
