package validation

import (
	"reflect"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with the custom rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// decimals are validated by value, not as structs
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("decimal_nonneg", decimalNonNegative)

	v.RegisterStructValidation(addProductStructValidation, AddProductRequest{})
	v.RegisterStructValidation(updateFormStructValidation, UpdateFormRequest{})

	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func decimalNonNegative(fl validatorv10.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative()
}

// addProductStructValidation rejects an initial quantity above the stock on hand.
func addProductStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(AddProductRequest)

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty > req.Stock {
		sl.ReportError(req.Quantity, "quantity", "Quantity", "within_stock", "")
	}
}

func updateFormStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateFormRequest)
	if req.ClearAppointment && req.AppointmentDatetime != nil {
		sl.ReportError(req.AppointmentDatetime, "appointment_datetime", "AppointmentDatetime", "excluded_with_clear", "")
	}
}
