package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition describes a committed status change handed to Effects.
type Transition struct {
	Sale    Sale
	Action  Action
	From    Status
	To      Status
	ActorID int64
	At      time.Time
}

// Effects applies inventory and ledger consequences of a transition inside
// the transaction that changes the status. An error aborts the transition.
type Effects interface {
	Apply(ctx context.Context, tx TxRepository, t Transition) error
}

// EffectsFunc adapts a function to Effects.
type EffectsFunc func(ctx context.Context, tx TxRepository, t Transition) error

// Apply calls f.
func (f EffectsFunc) Apply(ctx context.Context, tx TxRepository, t Transition) error {
	return f(ctx, tx, t)
}

// Chain runs effects in order and stops at the first failure.
func Chain(effects ...Effects) Effects {
	return EffectsFunc(func(ctx context.Context, tx TxRepository, t Transition) error {
		for _, e := range effects {
			if e == nil {
				continue
			}
			if err := e.Apply(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Event is an outbox row describing a transition for downstream consumers.
type Event struct {
	ID         uuid.UUID
	SaleID     int64
	CompanyID  int64
	Name       string
	From       Status
	To         Status
	Payload    []byte
	OccurredAt time.Time
}

type eventPayload struct {
	ActorID    int64      `json:"actor_id"`
	CustomerID int64      `json:"customer_id"`
	AccountID  int64      `json:"account_id"`
	StoreID    int64      `json:"store_id"`
	Amount     string     `json:"amount"`
	Paid       string     `json:"paid"`
	Items      []LineItem `json:"items"`
}

// OutboxRecorder writes one sale_events row per transition.
type OutboxRecorder struct{}

// Apply records the transition.
func (OutboxRecorder) Apply(ctx context.Context, tx TxRepository, t Transition) error {
	if t.Sale.ID == 0 {
		return errors.New("outbox: sale id required")
	}
	payload, err := json.Marshal(eventPayload{
		ActorID:    t.ActorID,
		CustomerID: t.Sale.CustomerID,
		AccountID:  t.Sale.AccountID,
		StoreID:    t.Sale.StoreID,
		Amount:     t.Sale.Amount.StringFixed(2),
		Paid:       t.Sale.Paid.StringFixed(2),
		Items:      t.Sale.Items,
	})
	if err != nil {
		return fmt.Errorf("encode sale event: %w", err)
	}
	name := "sale." + string(t.To)
	if t.Action == ActionDelete {
		name = "sale.deleted"
	}
	return tx.RecordEvent(ctx, Event{
		ID:         uuid.New(),
		SaleID:     t.Sale.ID,
		CompanyID:  t.Sale.CompanyID,
		Name:       name,
		From:       t.From,
		To:         t.To,
		Payload:    payload,
		OccurredAt: t.At,
	})
}

// StockKeeper moves product quantities: confirming a sale takes its items out
// of stock, cancelling or deleting a confirmed sale puts them back.
type StockKeeper struct{}

// Apply adjusts stock for confirm and for cancel or delete from confirmed.
func (StockKeeper) Apply(ctx context.Context, tx TxRepository, t Transition) error {
	var sign int64
	switch {
	case t.Action == ActionConfirm:
		sign = -1
	case (t.Action == ActionCancel || t.Action == ActionDelete) && t.From == StatusConfirmed:
		sign = 1
	default:
		return nil
	}
	for _, item := range t.Sale.Items {
		if err := tx.AdjustStock(ctx, t.Sale.CompanyID, item.ProductID, sign*item.Qty); err != nil {
			return err
		}
	}
	return nil
}

// DefaultEffects is the production chain.
func DefaultEffects() Effects {
	return Chain(StockKeeper{}, OutboxRecorder{})
}
