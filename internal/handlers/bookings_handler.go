package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/bookings"
	"github.com/imrishuroy/go-spa-checkout/internal/idempotency"
	"github.com/imrishuroy/go-spa-checkout/internal/reconcile"
	"github.com/imrishuroy/go-spa-checkout/internal/session"
)

type bookingsHandler struct {
	cfg        HandlerConfig
	reconciler *reconcile.Reconciler
}

// RegisterBookingRoutes registers the booking history and payment routes.
func RegisterBookingRoutes(r gin.IRouter, cfg HandlerConfig) {
	cfg.defaults()
	h := &bookingsHandler{
		cfg:        cfg,
		reconciler: reconcile.New(cfg.Bookings, cfg.PaymentGuard, cfg.Logger).WithClock(cfg.Now),
	}

	g := r.Group("/bookings")
	g.GET("", h.list)
	g.GET("/:id/quote", h.quote)
	g.POST("/:id/pay", h.pay)
}

func (h *bookingsHandler) list(c *gin.Context) {
	user, _ := session.FromContext(c.Request.Context())
	views, err := h.reconciler.List(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": views})
}

func (h *bookingsHandler) quote(c *gin.Context) {
	user, _ := session.FromContext(c.Request.Context())
	view, err := h.reconciler.Quote(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// pay settles a booking online. With an Idempotency-Key a repeated call
// returns the first outcome instead of paying again.
func (h *bookingsHandler) pay(c *gin.Context) {
	ctx := c.Request.Context()
	bookingID := c.Param("id")
	user, _ := session.FromContext(ctx)
	key := c.GetHeader("Idempotency-Key")

	if key != "" && h.cfg.Idempotency != nil {
		if !user.Authenticated() {
			writeError(c, reconcile.ErrUnauthenticated)
			return
		}
		// keys are per user so one client cannot replay another's receipt
		key = user.ID + ":" + key

		rec, err := h.cfg.Idempotency.Get(ctx, idempotency.ScopePay, key)
		if err != nil {
			writeError(c, apperrors.Wrap(apperrors.CodeDependency, err, "idempotency check failed"))
			return
		}
		if rec != nil {
			replay(c, rec)
			return
		}
		created, err := h.cfg.Idempotency.CreateIfNotExists(ctx, idempotency.ScopePay, key, bookingID)
		if err != nil {
			writeError(c, apperrors.Wrap(apperrors.CodeDependency, err, "idempotency check failed"))
			return
		}
		if !created {
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "booking_id": bookingID})
			return
		}
	}

	receipt, err := h.reconciler.Pay(ctx, user, bookingID)
	if err != nil {
		if key != "" && h.cfg.Idempotency != nil {
			if markErr := h.cfg.Idempotency.MarkFailed(ctx, idempotency.ScopePay, key, err.Error()); markErr != nil {
				h.cfg.Logger.Warn(ctx, "mark idempotency failed", markErr)
			}
		}
		writeError(c, err)
		return
	}

	publish(ctx, h.cfg, bookings.Event{
		Type:       bookings.EventPaymentRegistered,
		BookingID:  bookingID,
		UserID:     user.ID,
		OccurredAt: h.cfg.Now().UTC(),
	})

	body := gin.H{"booking_id": bookingID, "status": bookings.StatusPaid, "receipt": receipt}
	remember(ctx, h.cfg, idempotency.ScopePay, key, bookingID, body, http.StatusOK)
	c.JSON(http.StatusOK, body)
}
