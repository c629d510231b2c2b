package salesclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/internal/shared"
)

var (
	// ErrActionUnavailable is returned when the sale's last known status does
	// not offer the requested action.
	ErrActionUnavailable = errors.New("action not available for this sale")
	// ErrNotConfirmed is returned when the operator declines a destructive
	// action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrConfirmerRequired is returned for a destructive action when the
	// controller has no Confirmer.
	ErrConfirmerRequired = errors.New("destructive action needs a confirmer")
)

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, action sales.Action, sale Record) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, action sales.Action, sale Record) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, action sales.Action, sale Record) (bool, error) {
	return f(ctx, action, sale)
}

const refreshKey = "sales:list"

// Controller drives sale submissions and status transitions against the API
// and holds the list last fetched from it. Local state only ever changes to
// a server response; a failed call leaves it as it was.
type Controller struct {
	client    *Client
	confirmer Confirmer
	filter    ListOptions
	group     singleflight.Group

	mu         sync.RWMutex
	sales      []Record
	pagination shared.Pagination
	fetchedAt  time.Time
}

// NewController builds a controller listing sales that match filter.
func NewController(client *Client, confirmer Confirmer, filter ListOptions) *Controller {
	return &Controller{client: client, confirmer: confirmer, filter: filter}
}

// Sales returns a copy of the last fetched list.
func (c *Controller) Sales() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Record(nil), c.sales...)
}

// Pagination returns the paging metadata of the last fetched list.
func (c *Controller) Pagination() shared.Pagination {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pagination
}

// FetchedAt reports when the list was last replaced.
func (c *Controller) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Refresh refetches the list. Concurrent callers share one request.
func (c *Controller) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do(refreshKey, func() (any, error) {
		list, page, err := c.client.List(ctx, c.filter)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sales = list
		c.pagination = page
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// refreshAfter starts a fresh list request so a fetch that began before the
// mutation is not reused.
func (c *Controller) refreshAfter(ctx context.Context) error {
	c.group.Forget(refreshKey)
	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh sales: %w", err)
	}
	return nil
}

// Submit validates the draft, then creates it or replaces the stored draft.
// Validation failures return before any request is sent.
func (c *Controller) Submit(ctx context.Context, d Draft, idempotencyKey string) (*Record, error) {
	payload, err := ValidateForSubmission(d)
	if err != nil {
		return nil, err
	}
	var rec *Record
	if d.ID == 0 {
		rec, err = c.client.Create(ctx, payload, idempotencyKey)
	} else {
		rec, err = c.client.Update(ctx, d.ID, payload)
	}
	if err != nil {
		return nil, err
	}
	return rec, c.refreshAfter(ctx)
}

// Confirm requests draft → confirmed.
func (c *Controller) Confirm(ctx context.Context, id int64) (*Record, error) {
	return c.run(ctx, id, sales.ActionConfirm, func(ctx context.Context) (*Record, error) {
		return c.client.Confirm(ctx, id)
	})
}

// Cancel requests cancellation after the operator approves it.
func (c *Controller) Cancel(ctx context.Context, id int64) (*Record, error) {
	return c.run(ctx, id, sales.ActionCancel, func(ctx context.Context) (*Record, error) {
		return c.client.Cancel(ctx, id)
	})
}

// Deliver requests confirmed → delivered. A nil date means now.
func (c *Controller) Deliver(ctx context.Context, id int64, date *time.Time) (*Record, error) {
	return c.run(ctx, id, sales.ActionDeliver, func(ctx context.Context) (*Record, error) {
		return c.client.Deliver(ctx, id, date)
	})
}

// Delete removes the sale after the operator approves it.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	_, err := c.run(ctx, id, sales.ActionDelete, func(ctx context.Context) (*Record, error) {
		return nil, c.client.Delete(ctx, id)
	})
	return err
}

func (c *Controller) run(ctx context.Context, id int64, action sales.Action, call func(context.Context) (*Record, error)) (*Record, error) {
	current, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Allows(action) {
		return nil, fmt.Errorf("%w: cannot %s a %s sale", ErrActionUnavailable, action, current.Status)
	}
	if action.Destructive() {
		if c.confirmer == nil {
			return nil, ErrConfirmerRequired
		}
		ok, err := c.confirmer.Confirm(ctx, action, *current)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotConfirmed
		}
	}
	rec, err := call(ctx)
	if err != nil {
		return nil, err
	}
	return rec, c.refreshAfter(ctx)
}

// lookup prefers the fetched list and falls back to a single read.
func (c *Controller) lookup(ctx context.Context, id int64) (*Record, error) {
	c.mu.RLock()
	for i := range c.sales {
		if c.sales[i].ID == id {
			rec := c.sales[i]
			c.mu.RUnlock()
			return &rec, nil
		}
	}
	c.mu.RUnlock()
	return c.client.Get(ctx, id)
}
