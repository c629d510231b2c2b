package salesclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ganacsi/ganacsi/internal/sales"
)

// ErrItemIndex is returned for a line item position outside the draft.
var ErrItemIndex = errors.New("line item index out of range")

// Field names an editable line item input.
type Field string

const (
	FieldProduct  Field = "product_id"
	FieldQty      Field = "qty"
	FieldPrice    Field = "price"
	FieldDiscount Field = "discount"
	FieldTax      Field = "tax"
)

// ItemForm is a line item as typed into a form. Subtotal is kept in step
// with the operands by Draft.UpdateLineItem.
type ItemForm struct {
	ProductID string
	Qty       string
	Price     string
	Discount  string
	Tax       string
	Subtotal  decimal.Decimal
}

// Draft is the editable state of a sale before submission. ID is zero until
// the server has stored it.
type Draft struct {
	ID           int64
	CustomerID   string
	StoreID      string
	AccountID    string
	Items        []ItemForm
	Paid         string
	Notes        string
	DeliveryDate string
}

// DraftFrom loads a stored sale into an editable draft.
func DraftFrom(s sales.Sale) Draft {
	d := Draft{
		ID:         s.ID,
		CustomerID: strconv.FormatInt(s.CustomerID, 10),
		StoreID:    strconv.FormatInt(s.StoreID, 10),
		AccountID:  strconv.FormatInt(s.AccountID, 10),
		Paid:       s.Paid.String(),
		Items:      make([]ItemForm, len(s.Items)),
	}
	if s.Notes != nil {
		d.Notes = *s.Notes
	}
	if s.DeliveryDate != nil {
		d.DeliveryDate = s.DeliveryDate.Format("2006-01-02")
	}
	for i, item := range s.Items {
		d.Items[i] = ItemForm{
			ProductID: strconv.FormatInt(item.ProductID, 10),
			Qty:       strconv.FormatInt(item.Qty, 10),
			Price:     item.Price.String(),
			Discount:  item.Discount.String(),
			Tax:       item.Tax.String(),
			Subtotal:  item.ComputeSubtotal(),
		}
	}
	return d
}

// AddLineItem appends an empty line item.
func (d *Draft) AddLineItem() {
	d.Items = append(d.Items, ItemForm{Subtotal: decimal.Zero})
}

// RemoveLineItem drops the item at index. The list may become empty.
func (d *Draft) RemoveLineItem(index int) error {
	if index < 0 || index >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	d.Items = append(d.Items[:index], d.Items[index+1:]...)
	return nil
}

// UpdateLineItem sets one input of the item at index and recomputes that
// item's subtotal.
func (d *Draft) UpdateLineItem(index int, field Field, value string) error {
	if index < 0 || index >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	item := &d.Items[index]
	switch field {
	case FieldProduct:
		item.ProductID = value
	case FieldQty:
		item.Qty = value
	case FieldPrice:
		item.Price = value
	case FieldDiscount:
		item.Discount = value
	case FieldTax:
		item.Tax = value
	default:
		return fmt.Errorf("unknown line item field %q", field)
	}
	item.Subtotal = item.compute()
	return nil
}

// compute treats unparseable operands as zero so the running total stays
// usable while the user types.
func (f ItemForm) compute() decimal.Decimal {
	qty, _ := parseDecimal(f.Qty)
	price, _ := parseDecimal(f.Price)
	discount, _ := parseDecimal(f.Discount)
	tax, _ := parseDecimal(f.Tax)
	return qty.Truncate(0).Mul(price).Sub(discount).Add(tax)
}

// Amount sums the item subtotals.
func (d Draft) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// BalanceDue is Amount minus the typed paid value.
func (d Draft) BalanceDue() decimal.Decimal {
	paid, _ := parseDecimal(d.Paid)
	return d.Amount().Sub(paid)
}

// ValidateForSubmission coerces every form input and applies the sale
// rules. On failure the error is a sales.ValidationErrors.
func ValidateForSubmission(d Draft) (sales.Payload, error) {
	var coerce sales.ValidationErrors
	seen := map[string]bool{}
	fail := func(kind sales.Kind, field string, index *int, msg string) {
		coerce = append(coerce, sales.ValidationError{Kind: kind, Field: field, Index: index, Message: msg})
		seen[errorKey(field, index)] = true
	}

	p := sales.Payload{Items: make([]sales.ItemPayload, len(d.Items))}
	for _, ref := range []struct {
		field string
		raw   string
		dest  *sales.Ref
	}{
		{"customer_id", d.CustomerID, &p.CustomerID},
		{"store_id", d.StoreID, &p.StoreID},
		{"account_id", d.AccountID, &p.AccountID},
	} {
		v, err := parseRef(ref.raw)
		if err != nil {
			fail(sales.KindInvalidField, ref.field, nil, "must be a number")
			continue
		}
		*ref.dest = v
	}
	if paid, err := parseDecimal(d.Paid); err != nil {
		fail(sales.KindInvalidField, "paid", nil, "must be a number")
	} else {
		p.Paid = paid
	}
	if notes := strings.TrimSpace(d.Notes); notes != "" {
		p.Notes = &notes
	}
	if raw := strings.TrimSpace(d.DeliveryDate); raw != "" {
		date, err := sales.ParseDeliveryDate(raw)
		if err != nil {
			fail(sales.KindInvalidField, "delivery_date", nil, err.Error())
		} else {
			p.DeliveryDate = date
		}
	}

	for i, form := range d.Items {
		idx := i
		var item sales.ItemPayload
		if ref, err := parseRef(form.ProductID); err != nil {
			fail(sales.KindInvalidLineItem, string(FieldProduct), &idx, "must be a number")
		} else {
			item.ProductID = ref
		}
		for _, in := range []struct {
			field Field
			raw   string
			dest  *decimal.Decimal
		}{
			{FieldQty, form.Qty, &item.Qty},
			{FieldPrice, form.Price, &item.Price},
			{FieldDiscount, form.Discount, &item.Discount},
			{FieldTax, form.Tax, &item.Tax},
		} {
			v, err := parseDecimal(in.raw)
			if err != nil {
				fail(sales.KindInvalidLineItem, string(in.field), &idx, "must be a number")
				continue
			}
			*in.dest = v
		}
		p.Items[i] = item
	}

	normalized, err := sales.ValidatePayload(p)
	var rules sales.ValidationErrors
	if err != nil && !errors.As(err, &rules) {
		return p, err
	}
	for _, e := range rules {
		// A value that failed coercion is already reported.
		if seen[errorKey(e.Field, e.Index)] {
			continue
		}
		coerce = append(coerce, e)
	}
	if len(coerce) > 0 {
		return p, coerce
	}
	return normalized, nil
}

func errorKey(field string, index *int) string {
	if index == nil {
		return field
	}
	return strconv.Itoa(*index) + "." + field
}

// parseRef reads a form reference. Blank input is zero.
func parseRef(raw string) (sales.Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return sales.Ref(n), nil
}

// parseDecimal reads a form number. Blank input is zero.
func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
