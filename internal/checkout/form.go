package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/cart"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
	"github.com/imrishuroy/go-spa-checkout/internal/pricing"
)

// FormKey holds the checkout page state next to the carts.
const FormKey = "checkoutForm"

type Tab string

const (
	TabServices Tab = "services"
	TabProducts Tab = "products"
)

func ParseTab(raw string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(raw))) {
	case TabServices:
		return TabServices, nil
	case TabProducts:
		return TabProducts, nil
	default:
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown tab %q", raw))
	}
}

func (t Tab) purchaseType() pricing.PurchaseType {
	if t == TabProducts {
		return pricing.PurchaseProduct
	}
	return pricing.PurchaseService
}

// Form is what the user has selected on the checkout page.
type Form struct {
	Tab            Tab                   `json:"tab"`
	PaymentMethod  pricing.PaymentMethod `json:"payment_method"`
	DeliveryMethod string                `json:"delivery_method,omitempty"`
	Appointment    *time.Time            `json:"appointment_datetime,omitempty"`
	ProfessionalID string                `json:"professional_id,omitempty"`
}

func defaultForm() Form {
	return Form{Tab: TabServices}
}

func loadForm(ctx context.Context, storage cart.Storage, log *logger.Logger) Form {
	raw, err := storage.Load(ctx, FormKey)
	if err != nil {
		log.Warn(ctx, "checkout form unreadable, using defaults", err)
		return defaultForm()
	}
	if len(raw) == 0 {
		return defaultForm()
	}
	var f Form
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Warn(ctx, "checkout form corrupt, using defaults", err)
		return defaultForm()
	}
	if _, err := ParseTab(string(f.Tab)); err != nil {
		f.Tab = TabServices
	}
	f.PaymentMethod = pricing.ParsePaymentMethod(string(f.PaymentMethod))
	return f
}

func saveForm(ctx context.Context, storage cart.Storage, f Form) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal checkout form: %w", err)
	}
	if err := storage.Save(ctx, FormKey, payload); err != nil {
		return fmt.Errorf("persist checkout form: %w", err)
	}
	return nil
}
