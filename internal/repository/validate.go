package repository

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"reconquest/internal"
)

var (
	minTotalTolerance = decimal.RequireFromString("0.05")
	relTotalTolerance = decimal.RequireFromString("0.005")
)

// Validator checks invoices at the ingestion boundary. Struct tags cover
// shapes and enums; cross-field rules are checked by hand.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{v: v}
}

func (val *Validator) Validate(inv internal.Invoice) error {
	verr := &internal.ValidationError{InvoiceID: inv.ID}

	if err := val.v.Struct(inv); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.Add(trimNamespace(fe.Namespace()), describe(fe))
		}
	}

	for i, p := range inv.Products {
		field := fmt.Sprintf("products[%d]", i)
		if p.Type == internal.ProductCompetitor && p.ResolveBrand() == "" {
			verr.Add(field+".brand", "competitor product without a resolvable brand")
		}
		if !p.Quantity.IsPositive() || p.UnitPrice.IsNegative() {
			continue
		}
		expected := p.Quantity.Mul(p.UnitPrice)
		tolerance := decimal.Max(minTotalTolerance, expected.Abs().Mul(relTotalTolerance))
		if p.TotalPrice.Sub(expected).Abs().GreaterThan(tolerance) {
			verr.Add(field+".totalPrice", fmt.Sprintf("expected quantity × unitPrice = %s, got %s", expected.StringFixed(2), p.TotalPrice.String()))
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date formatted " + fe.Param()
	case "gte":
		if fe.Param() == "0" {
			return "must not be negative"
		}
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
