package sales

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganacsi/ganacsi/internal/auth"
)

func newTestRouter(t *testing.T, role auth.Role) (http.Handler, *testService) {
	t.Helper()
	ts := newTestService()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := auth.Principal{UserID: actor.UserID, CompanyID: actor.CompanyID, Role: role}
			next.ServeHTTP(w, req.WithContext(auth.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/sales", NewHandler(nil, ts.Service).MountRoutes)
	return r, ts
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

const createBody = `{"customer_id":"1","store_id":"2","account_id":"3",
	"items":[{"product_id":"10","qty":"2","price":"10","discount":"1","tax":"0.5"}],"paid":"20"}`

func TestHandlerCreateAndTransition(t *testing.T) {
	router, _ := newTestRouter(t, auth.RoleStaff)

	res := doRequest(router, http.MethodPost, "/api/sales", createBody)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var created struct {
		ID      int64    `json:"id"`
		Status  string   `json:"status"`
		Amount  string   `json:"amount"`
		Actions []string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, "20.5", created.Amount)
	assert.Equal(t, []string{"confirm", "cancel", "delete"}, created.Actions)

	base := "/api/sales/" + strconv.FormatInt(created.ID, 10)
	res = doRequest(router, http.MethodPatch, base+"/deliver", "")
	assert.Equal(t, http.StatusConflict, res.Code)

	res = doRequest(router, http.MethodPatch, base+"/confirm", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"status":"confirmed"`)

	res = doRequest(router, http.MethodPatch, base+"/deliver", `{"delivery_date":"2025-03-02"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"delivery_date":"2025-03-02T00:00:00Z"`)
	assert.Contains(t, res.Body.String(), `"actions":["delete"]`)
}

func TestHandlerValidationErrorBody(t *testing.T) {
	router, _ := newTestRouter(t, auth.RoleStaff)

	res := doRequest(router, http.MethodPost, "/api/sales", `{"customer_id":1,"store_id":2,"account_id":3,"items":[],"paid":0}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	var body struct {
		Message string            `json:"message"`
		Errors  []ValidationError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, KindEmptyItemList, body.Errors[0].Kind)
	assert.NotEmpty(t, body.Message)
}

func TestHandlerDeleteRequiresAdmin(t *testing.T) {
	staffRouter, staffSvc := newTestRouter(t, auth.RoleStaff)
	sale := staffSvc.createDraft(t)
	res := doRequest(staffRouter, http.MethodDelete, "/api/sales/"+strconv.FormatInt(sale.ID, 10), "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	adminRouter, adminSvc := newTestRouter(t, auth.RoleAdmin)
	sale = adminSvc.createDraft(t)
	res = doRequest(adminRouter, http.MethodDelete, "/api/sales/"+strconv.FormatInt(sale.ID, 10), "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"success":true}`, res.Body.String())

	res = doRequest(adminRouter, http.MethodGet, "/api/sales/"+strconv.FormatInt(sale.ID, 10), "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerListPagination(t *testing.T) {
	router, ts := newTestRouter(t, auth.RoleStaff)
	ts.createDraft(t)
	ts.createDraft(t)

	res := doRequest(router, http.MethodGet, "/api/sales?status=draft&per_page=1", "")
	require.Equal(t, http.StatusOK, res.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)

	res = doRequest(router, http.MethodGet, "/api/sales/abc", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestParseDeliveryDate(t *testing.T) {
	got, err := ParseDeliveryDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDeliveryDate("2025-03-02T10:30:00+03:00")
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 3, 2, 7, 30, 0, 0, time.UTC).Equal(*got))

	_, err = ParseDeliveryDate("next tuesday")
	assert.Error(t, err)
}
