package sales

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// Sentinel errors, one per validation kind.
var (
	ErrMissingReference = errors.New("missing reference")
	ErrEmptyItemList    = errors.New("sale has no line items")
	ErrInvalidLineItem  = errors.New("invalid line item")
	ErrOverpayment      = errors.New("paid amount exceeds sale amount")
	ErrInvalidField     = errors.New("invalid field")
)

// Kind classifies a validation failure.
type Kind string

const (
	KindMissingReference Kind = "MissingReference"
	KindEmptyItemList    Kind = "EmptyItemList"
	KindInvalidLineItem  Kind = "InvalidLineItem"
	KindOverpayment      Kind = "OverpaymentError"
	KindInvalidField     Kind = "InvalidField"
)

func (k Kind) sentinel() error {
	switch k {
	case KindMissingReference:
		return ErrMissingReference
	case KindEmptyItemList:
		return ErrEmptyItemList
	case KindInvalidLineItem:
		return ErrInvalidLineItem
	case KindOverpayment:
		return ErrOverpayment
	default:
		return ErrInvalidField
	}
}

// ValidationError is a field-scoped failure detected before persistence.
type ValidationError struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field"`
	Index   *int   `json:"index,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Index != nil {
		return fmt.Sprintf("items[%d].%s: %s", *e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.Kind.sentinel()
}

// ValidationErrors collects every failure of a payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes httpx.ErrValidation and the sentinel of every entry.
func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v)+1)
	out = append(out, httpx.ErrValidation)
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Details implements httpx.Detailer.
func (v ValidationErrors) Details() any {
	return []ValidationError(v)
}

// Has reports whether any entry has the given kind.
func (v ValidationErrors) Has(kind Kind) bool {
	for _, e := range v {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// ForItem returns the entries scoped to line item i.
func (v ValidationErrors) ForItem(i int) ValidationErrors {
	var out ValidationErrors
	for _, e := range v {
		if e.Index != nil && *e.Index == i {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// PAYLOAD
// ============================================================================

// Ref is a foreign key that decodes from a JSON number or a numeric string,
// as produced by HTML form inputs. Empty strings decode to zero.
type Ref int64

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(data, `"`)))
	if raw == "" || raw == "null" {
		*r = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reference %q", raw)
	}
	*r = Ref(n)
	return nil
}

// ItemPayload is one line item as submitted.
type ItemPayload struct {
	ProductID Ref             `json:"product_id" validate:"gt=0"`
	Qty       decimal.Decimal `json:"qty" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gt=0"`
	Discount  decimal.Decimal `json:"discount" validate:"gte=0"`
	Tax       decimal.Decimal `json:"tax" validate:"gte=0"`
}

// Payload is the create/replace body of a sale.
type Payload struct {
	CustomerID   Ref             `json:"customer_id" validate:"gt=0"`
	StoreID      Ref             `json:"store_id" validate:"gt=0"`
	AccountID    Ref             `json:"account_id" validate:"gt=0"`
	Items        []ItemPayload   `json:"items" validate:"min=1"`
	Paid         decimal.Decimal `json:"paid" validate:"gte=0"`
	Notes        *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
	DeliveryDate *time.Time      `json:"delivery_date,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var referenceFields = map[string]bool{"customer_id": true, "store_id": true, "account_id": true}

// Column bounds: qty is BIGINT, money is NUMERIC(18,2).
var (
	maxQty   = decimal.NewFromInt(math.MaxInt64)
	maxMoney = decimal.New(1, 16)
)

// ValidatePayload normalises p (money rounded to cents, qty whole, notes
// trimmed) and checks the normalised values against the submission rules,
// so the returned payload always satisfies them. The returned error is a
// ValidationErrors when rules fail.
func ValidatePayload(p Payload) (Payload, error) {
	var errs ValidationErrors
	n := normalize(p)

	if err := validate.Struct(n); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return p, fmt.Errorf("validate sale payload: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, headerError(fe))
		}
	}
	if n.Paid.GreaterThanOrEqual(maxMoney) {
		errs = append(errs, ValidationError{Kind: KindInvalidField, Field: "paid", Message: "must be less than " + maxMoney.String()})
	}

	itemsValid := len(p.Items) > 0
	for i, item := range p.Items {
		itemErrs := itemErrors(i, item, n.Items[i])
		if len(itemErrs) > 0 {
			itemsValid = false
			errs = append(errs, itemErrs...)
		}
	}

	// The amount is only meaningful once every line item is valid.
	if itemsValid {
		amount := payloadAmount(n.Items)
		switch {
		case amount.GreaterThanOrEqual(maxMoney):
			errs = append(errs, ValidationError{Kind: KindInvalidField, Field: "items", Message: "sale amount must be less than " + maxMoney.String()})
		case n.Paid.GreaterThan(amount):
			errs = append(errs, ValidationError{
				Kind:    KindOverpayment,
				Field:   "paid",
				Message: fmt.Sprintf("paid %s exceeds amount %s", n.Paid.StringFixed(2), amount.StringFixed(2)),
			})
		}
	}

	if len(errs) > 0 {
		return p, errs
	}
	return n, nil
}

func headerError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch {
	case referenceFields[field]:
		return ValidationError{Kind: KindMissingReference, Field: field, Message: "is required"}
	case field == "items":
		return ValidationError{Kind: KindEmptyItemList, Field: field, Message: "at least one line item is required"}
	default:
		return ValidationError{Kind: KindInvalidField, Field: field, Message: ruleMessage(fe)}
	}
}

// itemErrors checks the rounded money of item and the submitted qty: a
// fractional qty is reported rather than silently truncated.
func itemErrors(i int, raw, item ItemPayload) ValidationErrors {
	var errs ValidationErrors
	idx := i
	item.Qty = raw.Qty
	if err := validate.Struct(item); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, ValidationError{Kind: KindInvalidLineItem, Field: fe.Field(), Index: &idx, Message: itemRuleMessage(fe)})
			}
		}
	}
	if raw.Qty.IsPositive() && !raw.Qty.Equal(raw.Qty.Truncate(0)) {
		errs = append(errs, ValidationError{Kind: KindInvalidLineItem, Field: "qty", Index: &idx, Message: "must be a whole number"})
	}
	if raw.Qty.GreaterThan(maxQty) {
		errs = append(errs, ValidationError{Kind: KindInvalidLineItem, Field: "qty", Index: &idx, Message: "must be at most " + maxQty.String()})
	}
	for _, m := range []struct {
		field string
		value decimal.Decimal
	}{{"price", item.Price}, {"discount", item.Discount}, {"tax", item.Tax}} {
		if m.value.GreaterThanOrEqual(maxMoney) {
			errs = append(errs, ValidationError{Kind: KindInvalidLineItem, Field: m.field, Index: &idx, Message: "must be less than " + maxMoney.String()})
		}
	}
	return errs
}

func itemRuleMessage(fe validator.FieldError) string {
	// A positive price below half a cent rounds to zero.
	if fe.Field() == "price" && fe.Tag() == "gt" {
		return "must be at least 0.01"
	}
	return ruleMessage(fe)
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return "is invalid"
	}
}

func payloadAmount(items []ItemPayload) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(Subtotal(item.Qty.IntPart(), item.Price, item.Discount, item.Tax))
	}
	return total
}

func normalize(p Payload) Payload {
	out := p
	out.Items = make([]ItemPayload, len(p.Items))
	for i, item := range p.Items {
		out.Items[i] = ItemPayload{
			ProductID: item.ProductID,
			Qty:       item.Qty.Truncate(0),
			Price:     item.Price.Round(2),
			Discount:  item.Discount.Round(2),
			Tax:       item.Tax.Round(2),
		}
	}
	out.Paid = p.Paid.Round(2)
	if p.Notes != nil {
		trimmed := strings.TrimSpace(*p.Notes)
		if trimmed == "" {
			out.Notes = nil
		} else {
			out.Notes = &trimmed
		}
	}
	return out
}

// NewSale builds a draft sale from a validated payload.
func NewSale(actor Actor, p Payload) Sale {
	sale := Sale{
		CompanyID:    actor.CompanyID,
		CustomerID:   int64(p.CustomerID),
		StoreID:      int64(p.StoreID),
		AccountID:    int64(p.AccountID),
		Status:       StatusDraft,
		Paid:         p.Paid,
		Notes:        p.Notes,
		DeliveryDate: p.DeliveryDate,
		CreatedBy:    actor.UserID,
		Items:        make([]LineItem, len(p.Items)),
	}
	for i, item := range p.Items {
		sale.Items[i] = LineItem{
			ProductID: int64(item.ProductID),
			Qty:       item.Qty.IntPart(),
			Price:     item.Price,
			Discount:  item.Discount,
			Tax:       item.Tax,
			LineOrder: i + 1,
		}
	}
	sale.Recalculate()
	return sale
}
