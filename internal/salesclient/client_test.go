package salesclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganacsi/ganacsi/internal/sales"
)

func TestSessionTokenSource(t *testing.T) {
	var s Session
	_, err := s.Token(context.Background())
	require.ErrorIs(t, err, ErrNoToken)

	s.Set("abc")
	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	s.Clear()
	_, err = s.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestClientWithoutTokenSendsNothing(t *testing.T) {
	api, srv := newFakeAPI(t)
	client := NewClient(srv.URL, &Session{})

	_, _, err := client.List(context.Background(), ListOptions{})
	require.ErrorIs(t, err, ErrNoToken)
	assert.Zero(t, api.total())
}

func TestClientRequestErrorCarriesValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "validation failed",
			"errors":  []map[string]any{{"kind": "EmptyItemList", "field": "items", "message": "at least one line item is required"}},
		})
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, StaticToken(testToken)).Create(context.Background(), sales.Payload{}, "")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "validation failed", reqErr.Message)

	verrs, ok := reqErr.Validation()
	require.True(t, ok)
	assert.True(t, verrs.Has(sales.KindEmptyItemList))
}

func TestClientRequestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	err := NewClient(srv.URL, StaticToken(testToken)).Delete(context.Background(), 1)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusText(http.StatusBadGateway), reqErr.Message)
	_, ok := reqErr.Validation()
	assert.False(t, ok)
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, StaticToken(testToken)).Get(context.Background(), 1)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "an error occurred", err.Error())
	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewClient(srv.URL, StaticToken(testToken), WithTimeout(50*time.Millisecond))
	_, err := client.Get(context.Background(), 1)
	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestClientSendsIdempotencyKeyAndDeliveryDate(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			gotKey = r.Header.Get(sales.IdempotencyHeader)
		case http.MethodPatch:
			raw, _ := io.ReadAll(r.Body)
			gotBody = string(raw)
		}
		writeJSON(w, http.StatusOK, record(sales.Sale{ID: 1, Status: sales.StatusDelivered}))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, StaticToken(testToken))

	_, err := client.Create(context.Background(), sales.Payload{}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", gotKey)

	date := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	rec, err := client.Deliver(context.Background(), 1, &date)
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivery_date":"2024-05-01T09:30:00Z"}`, gotBody)
	assert.Equal(t, sales.StatusDelivered, rec.Status)
	assert.True(t, rec.Offers(sales.ActionDelete))
	assert.False(t, rec.Offers(sales.ActionCancel))
}
