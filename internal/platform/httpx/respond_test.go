package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detailed struct{}

func (detailed) Error() string { return "bad input" }
func (detailed) Unwrap() error { return ErrValidation }
func (detailed) Details() any  { return []string{"qty"} }

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("sale 4: %w", ErrNotFound), http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("confirm: %w", ErrConflict), http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Message)
	}
}

func TestRespondErrorIncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, detailed{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"bad input","errors":["qty"]}`, rec.Body.String())
}

func TestInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSONWrapsValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var v map[string]any
	err := DecodeJSON(req, &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
