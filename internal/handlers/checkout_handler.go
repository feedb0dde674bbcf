package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/aws"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/cart"
	"github.com/imrishuroy/go-spa-checkout/internal/checkout"
	"github.com/imrishuroy/go-spa-checkout/internal/idempotency"
	"github.com/imrishuroy/go-spa-checkout/internal/inflight"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
	"github.com/imrishuroy/go-spa-checkout/internal/validation"
)

// StorageFactory returns the cart storage of one owner (user id or guest session).
type StorageFactory func(owner string) (cart.Storage, error)

// HandlerConfig groups dependencies for the checkout and bookings routes.
type HandlerConfig struct {
	Storage      StorageFactory
	Bookings     *bookings.Store
	Idempotency  *idempotency.Store
	Publisher    *aws.Publisher
	ConfirmGuard inflight.Guard
	PaymentGuard inflight.Guard
	Logger       *logger.Logger
	Now          func() time.Time
}

func (cfg *HandlerConfig) defaults() {
	if cfg.ConfirmGuard == nil {
		cfg.ConfirmGuard = inflight.NewLocal()
	}
	if cfg.PaymentGuard == nil {
		cfg.PaymentGuard = inflight.NewLocal()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

var errNoCartOwner = apperrors.New(apperrors.CodeUnauthorized, "sign in or provide a session to use the cart")

type checkoutHandler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterCheckoutRoutes registers the checkout page routes.
func RegisterCheckoutRoutes(r gin.IRouter, cfg HandlerConfig) {
	cfg.defaults()
	h := &checkoutHandler{cfg: cfg, v: validation.New()}

	g := r.Group("/checkout")
	g.GET("", h.summary)
	g.PUT("/tab", h.selectTab)
	g.PUT("/form", h.updateForm)
	g.POST("/services", h.addService)
	g.DELETE("/services/:id", h.removeService)
	g.POST("/products", h.addProduct)
	g.PUT("/products/:id", h.setQuantity)
	g.DELETE("/products/:id", h.removeProduct)
	g.POST("/confirm", h.confirm)
}

// open builds the orchestrator for this request. Carts belong to the user
// when signed in, otherwise to the guest session id.
func (h *checkoutHandler) open(c *gin.Context) (*checkout.Orchestrator, bool) {
	ctx := c.Request.Context()
	user, _ := session.FromContext(ctx)

	owner := user.ID
	if owner == "" {
		owner = c.GetHeader(HeaderSessionID)
	}
	if owner == "" {
		writeError(c, errNoCartOwner)
		return nil, false
	}

	storage, err := h.cfg.Storage(owner)
	if err != nil {
		writeError(c, fmt.Errorf("cart storage: %w", err))
		return nil, false
	}

	o, err := checkout.Open(ctx, checkout.Deps{
		User:    user,
		Storage: storage,
		Backend: h.cfg.Bookings,
		Guard:   h.cfg.ConfirmGuard,
		Logger:  h.cfg.Logger,
		Now:     h.cfg.Now,
	})
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return o, true
}

// mutate runs op against a fresh orchestrator and answers with the new summary.
func (h *checkoutHandler) mutate(c *gin.Context, op func(context.Context, *checkout.Orchestrator) error) {
	o, ok := h.open(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), o); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Summary())
}

func (h *checkoutHandler) summary(c *gin.Context) {
	h.mutate(c, func(context.Context, *checkout.Orchestrator) error { return nil })
}

func (h *checkoutHandler) selectTab(c *gin.Context) {
	var req validation.SelectTabRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.SelectTab(ctx, req.Tab)
	})
}

func (h *checkoutHandler) updateForm(c *gin.Context) {
	var req validation.UpdateFormRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		if req.PaymentMethod != nil {
			if err := o.SetPaymentMethod(ctx, *req.PaymentMethod); err != nil {
				return err
			}
		}
		if req.DeliveryMethod != nil {
			if err := o.SetDeliveryMethod(ctx, *req.DeliveryMethod); err != nil {
				return err
			}
		}
		if req.AppointmentDatetime != nil || req.ClearAppointment || req.ProfessionalID != nil {
			at := o.Form().Appointment
			professional := o.Form().ProfessionalID
			if req.AppointmentDatetime != nil {
				at = req.AppointmentDatetime
			}
			if req.ClearAppointment {
				at = nil
			}
			if req.ProfessionalID != nil {
				professional = *req.ProfessionalID
			}
			return o.SetAppointment(ctx, at, professional)
		}
		return nil
	})
}

func (h *checkoutHandler) addService(c *gin.Context) {
	var req validation.AddServiceRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.AddService(ctx, cart.ServiceItem{
			ID:       req.ID,
			Title:    req.Title,
			Price:    req.Price,
			Duration: req.Duration,
			IsGroup:  req.IsGroup,
		})
	})
}

func (h *checkoutHandler) removeService(c *gin.Context) {
	id := cart.ItemID(c.Param("id"))
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.RemoveService(ctx, id)
	})
}

func (h *checkoutHandler) addProduct(c *gin.Context) {
	var req validation.AddProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.AddProduct(ctx, cart.ProductItem{
			ID:       req.ID,
			Name:     req.Name,
			Price:    req.Price,
			Quantity: req.Quantity,
			Stock:    req.Stock,
		})
	})
}

func (h *checkoutHandler) setQuantity(c *gin.Context) {
	var req validation.SetQuantityRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	id := cart.ItemID(c.Param("id"))
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.SetProductQuantity(ctx, id, *req.Quantity)
	})
}

func (h *checkoutHandler) removeProduct(c *gin.Context) {
	id := cart.ItemID(c.Param("id"))
	h.mutate(c, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.RemoveProduct(ctx, id)
	})
}

// confirm submits the active tab. An Idempotency-Key replays the stored
// response of a finished request instead of creating a second booking.
func (h *checkoutHandler) confirm(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.GetHeader("Idempotency-Key")

	if key != "" && h.cfg.Idempotency != nil {
		rec, err := h.cfg.Idempotency.Get(ctx, idempotency.ScopeConfirm, key)
		if err != nil {
			writeError(c, apperrors.Wrap(apperrors.CodeDependency, err, "idempotency check failed"))
			return
		}
		if rec != nil {
			replay(c, rec)
			return
		}
	}

	o, ok := h.open(c)
	if !ok {
		return
	}
	conf, err := o.Confirm(ctx, key)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx = h.cfg.Logger.WithBookingID(ctx, conf.BookingID)

	user, _ := session.FromContext(ctx)
	publish(ctx, h.cfg, bookings.Event{
		Type:         bookings.EventBookingCreated,
		BookingID:    conf.BookingID,
		UserID:       user.ID,
		PurchaseType: string(conf.Summary.Tab),
		OccurredAt:   h.cfg.Now().UTC(),
	})

	body := gin.H{"booking_id": conf.BookingID, "status": bookings.StatusPending, "summary": conf.Summary}
	remember(ctx, h.cfg, idempotency.ScopeConfirm, key, conf.BookingID, body, http.StatusCreated)

	c.Header("Location", fmt.Sprintf("/bookings/%s", conf.BookingID))
	c.JSON(http.StatusCreated, body)
}

// replay answers a repeated idempotent request from its stored record.
func replay(c *gin.Context, rec *idempotency.IdempotencyRecord) {
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"booking_id": rec.BookingID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "booking_id": rec.BookingID})
	case idempotency.StatusFailed:
		writeError(c, apperrors.New(apperrors.CodeConflict, "previous attempt with this key failed, retry with a new key"))
	default:
		writeError(c, fmt.Errorf("unknown idempotency status %q", rec.Status))
	}
}

// remember stores the response for key. Failures are logged; the write itself succeeded.
func remember(ctx context.Context, cfg HandlerConfig, scope, key, bookingID string, body any, status int) {
	if key == "" || cfg.Idempotency == nil {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		cfg.Logger.Warn(ctx, "marshal idempotent response", err)
		return
	}
	if err := cfg.Idempotency.MarkDone(ctx, scope, key, bookingID, string(payload), status); err != nil {
		cfg.Logger.Warn(ctx, "store idempotent response", err)
	}
}

// publish emits an event after a successful write. A failed publish never
// undoes the write.
func publish(ctx context.Context, cfg HandlerConfig, evt bookings.Event) {
	if !cfg.Publisher.Enabled() {
		return
	}
	attrs := map[string]string{
		"booking_id":     evt.BookingID,
		"correlation_id": requestIDFrom(ctx),
	}
	if err := cfg.Publisher.Publish(ctx, evt.Type, evt, attrs); err != nil {
		cfg.Logger.Warn(ctx, "publish "+evt.Type+" failed", err)
	}
}
