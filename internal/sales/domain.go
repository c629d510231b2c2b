package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// STATUS
// ============================================================================

// Status represents the lifecycle of a sale.
type Status string

const (
	StatusDraft     Status = "draft"     // Editable, no side effects applied
	StatusPending   Status = "pending"   // Awaiting external approval, no transitions offered
	StatusConfirmed Status = "confirmed" // Inventory and ledger effects applied
	StatusDelivered Status = "delivered" // Goods handed over, terminal
	StatusCancelled Status = "cancelled" // Effects reversed, terminal
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit checks if the sale can be replaced in this status.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// CanConfirm checks if the sale can be confirmed.
func (s Status) CanConfirm() bool {
	return s == StatusDraft
}

// CanDeliver checks if the sale can be delivered.
func (s Status) CanDeliver() bool {
	return s == StatusConfirmed
}

// CanCancel checks if the sale can be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusConfirmed
}

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Allows reports whether action is offered for a sale in status s.
func (s Status) Allows(a Action) bool {
	switch a {
	case ActionConfirm:
		return s.CanConfirm()
	case ActionDeliver:
		return s.CanDeliver()
	case ActionCancel:
		return s.CanCancel()
	case ActionDelete:
		return s.IsValid()
	default:
		return false
	}
}

// ============================================================================
// ACTIONS
// ============================================================================

// Action names a user-requestable operation on a persisted sale.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionDeliver Action = "deliver"
	ActionCancel  Action = "cancel"
	ActionDelete  Action = "delete"
)

// Target returns the status an action moves a sale into. Delete has none.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionConfirm:
		return StatusConfirmed, true
	case ActionDeliver:
		return StatusDelivered, true
	case ActionCancel:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Destructive reports whether the action cannot be undone and needs an
// explicit confirmation from the operator.
func (a Action) Destructive() bool {
	return a == ActionCancel || a == ActionDelete
}

// AvailableActions returns the actions offered for a sale in status s, in
// display order.
func AvailableActions(s Status) []Action {
	out := make([]Action, 0, 4)
	for _, a := range []Action{ActionConfirm, ActionDeliver, ActionCancel, ActionDelete} {
		if s.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}

// ============================================================================
// SALE ENTITY
// ============================================================================

// LineItem is one product row of a sale.
type LineItem struct {
	ID        int64           `json:"id,omitempty"`
	ProductID int64           `json:"product_id"`
	Qty       int64           `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	LineOrder int             `json:"line_order"`
}

// Subtotal computes qty*price - discount + tax.
func Subtotal(qty int64, price, discount, tax decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(qty).Mul(price).Sub(discount).Add(tax)
}

// ComputeSubtotal recomputes the subtotal from the item's operands.
func (l LineItem) ComputeSubtotal() decimal.Decimal {
	return Subtotal(l.Qty, l.Price, l.Discount, l.Tax)
}

// Sale is the aggregate root of the sales lifecycle.
type Sale struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"company_id"`
	CustomerID   int64           `json:"customer_id"`
	StoreID      int64           `json:"store_id"`
	AccountID    int64           `json:"account_id"`
	Items        []LineItem      `json:"items"`
	Status       Status          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Paid         decimal.Decimal `json:"paid"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
	Notes        *string         `json:"notes,omitempty"`
	DeliveryDate *time.Time      `json:"delivery_date,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Amount sums the recomputed subtotals of items.
func Amount(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.ComputeSubtotal())
	}
	return total
}

// Recalculate refreshes every derived field from the stored operands.
func (s *Sale) Recalculate() {
	for i := range s.Items {
		s.Items[i].Subtotal = s.Items[i].ComputeSubtotal()
	}
	s.Amount = Amount(s.Items)
	s.BalanceDue = s.Amount.Sub(s.Paid)
}

// Actions returns the actions currently offered for the sale.
func (s Sale) Actions() []Action {
	return AvailableActions(s.Status)
}

// Actor identifies the tenant and user performing an operation.
type Actor struct {
	CompanyID int64
	UserID    int64
}

// ListFilter narrows a sales listing.
type ListFilter struct {
	CompanyID  int64
	Status     *Status
	CustomerID *int64
	Limit      int
	Offset     int
}
