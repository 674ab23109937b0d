package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Keys accepted by QuoteFromMaps. They intentionally differ from the Item field
// names.
const (
	KeySKU       = "sku"
	KeyPrice     = "price"
	KeyQty       = "qty"
	KeyCategory  = "category"
	KeyTaxExempt = "tax_exempt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("pricing: validation failed")

// ValidationError reports a malformed item at the adapter boundary.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("item %d: %s %s", e.Index, e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type itemInput struct {
	SKU      string `field:"sku" validate:"required"`
	Quantity int    `field:"qty" validate:"min=1"`
	Category string `field:"category" validate:"oneof=general food"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	return v
}

// QuoteFromMaps builds Items from loosely typed maps and prices them. Missing
// qty defaults to 1, category to general and tax_exempt to false. Any field
// that cannot be parsed yields a *ValidationError and no quote.
func (e *Engine) QuoteFromMaps(items []map[string]any, region, membership string, codes []string) (Breakdown, error) {
	parsed, err := ItemsFromMaps(items)
	if err != nil {
		return Breakdown{}, err
	}
	req := QuoteRequest{
		Region:      region,
		Membership:  ParseMembership(membership),
		CouponCodes: slices.Clone(codes),
	}
	return e.Quote(parsed, req), nil
}

// ItemsFromMaps converts loosely typed item maps into Items.
func ItemsFromMaps(raw []map[string]any) ([]Item, error) {
	out := make([]Item, 0, len(raw))
	for i, m := range raw {
		it, err := itemFromMap(i, m)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func itemFromMap(idx int, m map[string]any) (Item, error) {
	for _, key := range slices.Sorted(maps.Keys(m)) {
		switch key {
		case KeySKU, KeyPrice, KeyQty, KeyCategory, KeyTaxExempt:
		default:
			return Item{}, &ValidationError{Index: idx, Field: key, Reason: "is not a recognised field"}
		}
	}

	in := itemInput{Quantity: 1, Category: string(CategoryGeneral)}
	if v, ok := m[KeySKU]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Item{}, &ValidationError{Index: idx, Field: KeySKU, Reason: "must be a string"}
		}
		in.SKU = s
	}

	rawPrice, ok := m[KeyPrice]
	if !ok || rawPrice == nil {
		return Item{}, &ValidationError{Index: idx, Field: KeyPrice, Reason: "is required"}
	}
	price, err := toDecimal(rawPrice)
	if err != nil {
		return Item{}, &ValidationError{Index: idx, Field: KeyPrice, Reason: "must be numeric"}
	}
	if price.IsNegative() {
		return Item{}, &ValidationError{Index: idx, Field: KeyPrice, Reason: "must not be negative"}
	}
	if magnitude(price) > maxPriceMagnitude || price.Exponent() < minPriceExponent {
		return Item{}, &ValidationError{Index: idx, Field: KeyPrice, Reason: "is out of range"}
	}

	if v, ok := m[KeyQty]; ok && v != nil {
		qty, err := toInt(v)
		if err != nil {
			return Item{}, &ValidationError{Index: idx, Field: KeyQty, Reason: "must be an integer"}
		}
		in.Quantity = qty
	}
	if v, ok := m[KeyCategory]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Item{}, &ValidationError{Index: idx, Field: KeyCategory, Reason: "must be a string"}
		}
		if c := strings.ToLower(strings.TrimSpace(s)); c != "" {
			in.Category = c
		}
	}

	exempt := false
	if v, ok := m[KeyTaxExempt]; ok && v != nil {
		b, err := toBool(v)
		if err != nil {
			return Item{}, &ValidationError{Index: idx, Field: KeyTaxExempt, Reason: "must be a boolean"}
		}
		exempt = b
	}

	if err := validate.Struct(in); err != nil {
		return Item{}, translateValidation(idx, err)
	}

	return Item{
		SKU:       in.SKU,
		UnitPrice: price,
		Quantity:  in.Quantity,
		Category:  Category(in.Category),
		TaxExempt: exempt,
	}, nil
}

func translateValidation(idx int, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Index: idx, Field: "item", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = "must be at least " + fe.Param()
	case "oneof":
		reason = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return &ValidationError{Index: idx, Field: fe.Field(), Reason: reason}
}

// Prices must stay below 10^15 and carry at most 15 decimal places.
const (
	maxPriceMagnitude = 15
	minPriceExponent  = -15
)

var errNotNumeric = errors.New("not numeric")

func toDecimal(v any) (Money, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return zero, errNotNumeric
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return zero, errNotNumeric
		}
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	default:
		return zero, errNotNumeric
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, errNotNumeric
		}
		return int(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return toInt(f)
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, errNotNumeric
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, errors.New("not a boolean")
	}
}
