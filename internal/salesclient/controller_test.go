package salesclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/internal/shared"
)

const testToken = "tok"

// fakeAPI is an in-memory stand-in for the sales endpoints.
type fakeAPI struct {
	mu     sync.Mutex
	nextID int64
	sales  map[int64]sales.Sale
	calls  map[string]int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{sales: map[int64]sales.Sale{}, calls: map[string]int{}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer "+testToken {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
				return
			}
			api.mu.Lock()
			api.calls[req.Method]++
			api.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/sales", api.list)
	r.Post("/api/sales", api.create)
	r.Get("/api/sales/{id}", api.get)
	r.Put("/api/sales/{id}", api.update)
	r.Delete("/api/sales/{id}", api.remove)
	r.Patch("/api/sales/{id}/{action}", api.transition)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func record(s sales.Sale) Record {
	return Record{Sale: s, Actions: s.Actions()}
}

func (a *fakeAPI) count(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func (a *fakeAPI) setStatus(id int64, status sales.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sales[id]
	s.Status = status
	a.sales[id] = s
}

func (a *fakeAPI) list(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, 0, len(a.sales))
	for _, s := range a.sales {
		out = append(out, record(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{
		"sales":      out,
		"pagination": shared.NewPagination(1, 20, len(out)),
	})
}

func (a *fakeAPI) lookup(w http.ResponseWriter, r *http.Request) (sales.Sale, bool) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s, ok := a.sales[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "sale not found"})
	}
	return s, ok
}

func (a *fakeAPI) get(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, record(s))
	}
}

func (a *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var p sales.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if _, err := sales.ValidatePayload(p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "validation failed", "errors": err})
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	s := sales.NewSale(sales.Actor{CompanyID: 1, UserID: 1}, p)
	s.ID = a.nextID
	a.sales[s.ID] = s
	writeJSON(w, http.StatusCreated, record(s))
}

func (a *fakeAPI) update(w http.ResponseWriter, r *http.Request) {
	var p sales.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	current, ok := a.lookup(w, r)
	if !ok {
		return
	}
	s := sales.NewSale(sales.Actor{CompanyID: 1, UserID: 1}, p)
	s.ID = current.ID
	a.sales[s.ID] = s
	writeJSON(w, http.StatusOK, record(s))
}

func (a *fakeAPI) remove(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.lookup(w, r); ok {
		delete(a.sales, s.ID)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (a *fakeAPI) transition(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.lookup(w, r)
	if !ok {
		return
	}
	action := sales.Action(chi.URLParam(r, "action"))
	target, _ := action.Target()
	if s.Status != target {
		if !s.Status.Allows(action) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "cannot " + string(action) + " a " + string(s.Status) + " sale"})
			return
		}
		s.Status = target
	}
	a.sales[s.ID] = s
	writeJSON(w, http.StatusOK, record(s))
}

func approve(ok bool) (*int, Confirmer) {
	asked := 0
	return &asked, ConfirmFunc(func(context.Context, sales.Action, Record) (bool, error) {
		asked++
		return ok, nil
	})
}

func newController(t *testing.T, confirmer Confirmer) (*Controller, *fakeAPI) {
	t.Helper()
	api, srv := newFakeAPI(t)
	client := NewClient(srv.URL, StaticToken(testToken))
	return NewController(client, confirmer, ListOptions{}), api
}

func submitDraft(t *testing.T, c *Controller) *Record {
	t.Helper()
	rec, err := c.Submit(context.Background(), validDraft(t), "")
	require.NoError(t, err)
	return rec
}

func TestSubmitCreatesAndRefetches(t *testing.T) {
	c, api := newController(t, nil)

	rec := submitDraft(t, c)
	assert.Equal(t, sales.StatusDraft, rec.Status)
	assert.True(t, d("20.5").Equal(rec.Amount))
	assert.Equal(t, []sales.Action{sales.ActionConfirm, sales.ActionCancel, sales.ActionDelete}, rec.Actions)

	assert.Equal(t, 1, api.count(http.MethodPost))
	assert.Equal(t, 1, api.count(http.MethodGet))
	require.Len(t, c.Sales(), 1)
	assert.Equal(t, 1, c.Pagination().Total)
	assert.False(t, c.FetchedAt().IsZero())
}

func TestSubmitUpdatesExistingDraft(t *testing.T) {
	c, api := newController(t, nil)
	rec := submitDraft(t, c)

	draft := DraftFrom(rec.Sale)
	require.NoError(t, draft.UpdateLineItem(0, FieldQty, "3"))
	updated, err := c.Submit(context.Background(), draft, "")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.True(t, d("29.5").Equal(updated.Amount))
	assert.Equal(t, 1, api.count(http.MethodPut))
}

func TestSubmitInvalidDraftSendsNothing(t *testing.T) {
	c, api := newController(t, nil)
	draft := validDraft(t)
	draft.Paid = "25"

	_, err := c.Submit(context.Background(), draft, "")
	require.ErrorIs(t, err, sales.ErrOverpayment)
	assert.Zero(t, api.total())
}

func TestConfirmThenDeliver(t *testing.T) {
	c, api := newController(t, nil)
	rec := submitDraft(t, c)

	confirmed, err := c.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusConfirmed, confirmed.Status)
	assert.Equal(t, sales.StatusConfirmed, c.Sales()[0].Status)

	delivered, err := c.Deliver(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusDelivered, delivered.Status)
	assert.Equal(t, sales.StatusDelivered, c.Sales()[0].Status)

	// One list refetch per successful mutation.
	assert.Equal(t, 3, api.count(http.MethodGet))
	assert.Equal(t, 2, api.count(http.MethodPatch))
}

func TestUnavailableActionIsRefusedLocally(t *testing.T) {
	c, api := newController(t, nil)
	rec := submitDraft(t, c)
	before := api.total()

	_, err := c.Deliver(context.Background(), rec.ID, nil)
	require.ErrorIs(t, err, ErrActionUnavailable)
	assert.Equal(t, before, api.total())
}

func TestCancelNeedsConfirmation(t *testing.T) {
	t.Run("no confirmer", func(t *testing.T) {
		c, api := newController(t, nil)
		rec := submitDraft(t, c)

		_, err := c.Cancel(context.Background(), rec.ID)
		require.ErrorIs(t, err, ErrConfirmerRequired)
		assert.Zero(t, api.count(http.MethodPatch))
	})

	t.Run("declined", func(t *testing.T) {
		asked, confirmer := approve(false)
		c, api := newController(t, confirmer)
		rec := submitDraft(t, c)

		_, err := c.Cancel(context.Background(), rec.ID)
		require.ErrorIs(t, err, ErrNotConfirmed)
		assert.Equal(t, 1, *asked)
		assert.Zero(t, api.count(http.MethodPatch))
		assert.Equal(t, sales.StatusDraft, c.Sales()[0].Status)
	})

	t.Run("approved", func(t *testing.T) {
		asked, confirmer := approve(true)
		c, _ := newController(t, confirmer)
		rec := submitDraft(t, c)

		cancelled, err := c.Cancel(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, *asked)
		assert.Equal(t, sales.StatusCancelled, cancelled.Status)
		assert.Equal(t, []sales.Action{sales.ActionDelete}, cancelled.Actions)
	})
}

func TestDeleteRemovesAfterConfirmation(t *testing.T) {
	asked, confirmer := approve(true)
	c, api := newController(t, confirmer)
	rec := submitDraft(t, c)

	require.NoError(t, c.Delete(context.Background(), rec.ID))
	assert.Equal(t, 1, *asked)
	assert.Equal(t, 1, api.count(http.MethodDelete))
	assert.Empty(t, c.Sales())
}

func TestServerRejectionLeavesStateUnchanged(t *testing.T) {
	c, api := newController(t, nil)
	rec := submitDraft(t, c)
	api.setStatus(rec.ID, sales.StatusDelivered)
	gets := api.count(http.MethodGet)

	_, err := c.Confirm(context.Background(), rec.ID)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusConflict, reqErr.Status)
	assert.Equal(t, "cannot confirm a delivered sale", reqErr.Message)

	assert.Equal(t, gets, api.count(http.MethodGet))
	assert.Equal(t, sales.StatusDraft, c.Sales()[0].Status)
}

func TestLookupFallsBackToGet(t *testing.T) {
	c, api := newController(t, nil)
	rec := submitDraft(t, c)
	other := NewController(NewClient(c.client.baseURL, StaticToken(testToken)), nil, ListOptions{})

	confirmed, err := other.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusConfirmed, confirmed.Status)
	assert.Equal(t, 3, api.count(http.MethodGet))
}
