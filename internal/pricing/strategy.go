package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PurchaseType selects which discount policy table applies.
type PurchaseType string

const (
	PurchaseService PurchaseType = "service"
	PurchaseProduct PurchaseType = "product"
)

func (p PurchaseType) Valid() bool {
	return p == PurchaseService || p == PurchaseProduct
}

// PaymentMethod is the checkout form's payment selection. The zero value means unset.
type PaymentMethod string

const (
	PaymentUnset     PaymentMethod = ""
	PaymentCash      PaymentMethod = "cash"
	PaymentDebitCard PaymentMethod = "debit_card"
	PaymentOther     PaymentMethod = "other"
)

// ParsePaymentMethod normalizes client input. Unknown non-empty values map to PaymentOther.
func ParsePaymentMethod(raw string) PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return PaymentUnset
	case "cash", "efectivo":
		return PaymentCash
	case "debit", "card", "debit_card", "tarjeta":
		return PaymentDebitCard
	default:
		return PaymentOther
	}
}

func (m PaymentMethod) IsSet() bool { return m != PaymentUnset }

var (
	// ServiceCardRate rewards card payment for services at checkout.
	ServiceCardRate = decimal.RequireFromString("0.15")
	// ProductCashRate rewards cash payment for products at checkout.
	ProductCashRate = decimal.RequireFromString("0.10")
	// EarlyPaymentRate applies when a pending booking is paid 48h or more ahead.
	EarlyPaymentRate = decimal.RequireFromString("0.15")
)

// Result is the outcome of a discount calculation.
// FinalTotal always equals subtotal minus DiscountAmount.
type Result struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
}

// Strategy computes a discount for a subtotal. Implementations are pure.
type Strategy interface {
	Calculate(subtotal decimal.Decimal) Result
	Name() string
}

type percentOff struct {
	name string
	rate decimal.Decimal
}

// PercentOff returns a strategy discounting rate (0..1) of the subtotal.
func PercentOff(name string, rate decimal.Decimal) Strategy {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		panic(fmt.Sprintf("pricing: rate %s out of range", rate))
	}
	return percentOff{name: name, rate: rate}
}

func (p percentOff) Name() string { return p.name }

func (p percentOff) Calculate(subtotal decimal.Decimal) Result {
	if subtotal.IsNegative() {
		panic(fmt.Sprintf("pricing: negative subtotal %s", subtotal))
	}
	// exact; rounding to currency units is left to presentation
	discount := subtotal.Mul(p.rate)
	return Result{
		DiscountAmount: discount,
		FinalTotal:     subtotal.Sub(discount),
	}
}

var (
	NoDiscount          = PercentOff("none", decimal.Zero)
	ServiceCardDiscount = PercentOff("service_debit_card", ServiceCardRate)
	ProductCashDiscount = PercentOff("product_cash", ProductCashRate)
	EarlyPayment        = PercentOff("early_payment", EarlyPaymentRate)
)

type strategyKey struct {
	purchase PurchaseType
	method   PaymentMethod
}

var strategies = map[strategyKey]Strategy{
	{PurchaseService, PaymentDebitCard}: ServiceCardDiscount,
	{PurchaseProduct, PaymentCash}:      ProductCashDiscount,
}

// StrategyFor picks the checkout discount for a purchase type and payment method.
func StrategyFor(purchase PurchaseType, method PaymentMethod) Strategy {
	if s, ok := strategies[strategyKey{purchase, method}]; ok {
		return s
	}
	return NoDiscount
}
