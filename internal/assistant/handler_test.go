package assistant

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganacsi/ganacsi/internal/auth"
)

func newRouter(src DataSource) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := auth.Principal{UserID: 1, CompanyID: 7, Role: auth.RoleStaff}
			next.ServeHTTP(w, req.WithContext(auth.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/assistant", NewHandler(nil, src).MountRoutes)
	return r
}

func ask(t *testing.T, h http.Handler, body string, header map[string]string) (*httptest.ResponseRecorder, askResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	var out askResponse
	if res.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	}
	return res, out
}

func TestAskAnswersDetectedIntents(t *testing.T) {
	src := &fakeSource{
		accounts: []Account{{Name: "Till", Balance: d("40")}},
		sales: []Deal{
			{ID: 1, Counterparty: "Hodan", Amount: d("30"), Status: "draft"},
			{ID: 2, Counterparty: "Cali", Amount: d("70"), Status: "confirmed"},
		},
	}
	res, out := ask(t, newRouter(src), `{"question":"How are my sales and my cash account?"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.False(t, out.Fallback)
	assert.Equal(t, "en", out.Language)
	assert.Equal(t, []Intent{IntentAccounts, IntentSales}, out.Intents)
	assert.Equal(t,
		"Your account Till has a balance of 40.00.\nYou have 2 sales totalling 100.00. Largest: Cali (70.00), Hodan (30.00).",
		out.Answer)
}

func TestAskUsesAcceptLanguage(t *testing.T) {
	res, out := ask(t, newRouter(&fakeSource{}), `{"question":"akoon"}`, map[string]string{"Accept-Language": "so"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "so", out.Language)
	assert.Equal(t, "Weli ma lihid akoon.", out.Answer)
}

func TestAskFallback(t *testing.T) {
	res, out := ask(t, newRouter(&fakeSource{}), `{"question":"tell me a joke","lang":"en"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, out.Fallback)
	assert.Empty(t, out.Intents)
	assert.Equal(t, Fallback(English), out.Answer)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	res, _ := ask(t, newRouter(&fakeSource{}), `{"question":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAskLoadFailure(t *testing.T) {
	res, _ := ask(t, newRouter(&fakeSource{err: errors.New("db down")}), `{"question":"stock"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}
