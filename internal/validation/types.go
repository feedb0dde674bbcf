package validation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-spa-checkout/internal/cart"
)

// AddServiceRequest is the payload for POST /checkout/services.
type AddServiceRequest struct {
	ID       cart.ItemID     `json:"id" validate:"required"`
	Title    string          `json:"title" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price" validate:"decimal_nonneg"`
	Duration *int            `json:"duration,omitempty" validate:"omitempty,min=1"`
	IsGroup  bool            `json:"isGroup"`
}

// AddProductRequest is the payload for POST /checkout/products.
type AddProductRequest struct {
	ID       cart.ItemID     `json:"id" validate:"required"`
	Name     string          `json:"name" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price" validate:"decimal_nonneg"`
	Quantity int             `json:"quantity" validate:"omitempty,min=1"`
	Stock    int             `json:"stock" validate:"min=0"`
}

// SetQuantityRequest is the payload for PUT /checkout/products/:id.
// Zero removes the line; the cart enforces the stock ceiling.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type SelectTabRequest struct {
	Tab string `json:"tab" validate:"required,oneof=services products"`
}

// UpdateFormRequest patches the checkout form; nil fields are left as they are.
type UpdateFormRequest struct {
	PaymentMethod       *string    `json:"payment_method" validate:"omitempty,max=32"`
	DeliveryMethod      *string    `json:"delivery_method" validate:"omitempty,max=64"`
	AppointmentDatetime *time.Time `json:"appointment_datetime"`
	ClearAppointment    bool       `json:"clear_appointment"`
	ProfessionalID      *string    `json:"professional_id" validate:"omitempty,max=64"`
}
