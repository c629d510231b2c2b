package sales

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ganacsi/ganacsi/internal/auth"
	"github.com/ganacsi/ganacsi/internal/platform/httpx"
	"github.com/ganacsi/ganacsi/internal/shared"
)

// IdempotencyHeader carries the client supplied request key on create.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the sales REST endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	invoice http.Handler
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// SetInvoiceHandler mounts h at GET /{id}/invoice.
func (h *Handler) SetInvoiceHandler(invoice http.Handler) {
	h.invoice = invoice
}

// MountRoutes registers sales routes. The caller mounts it behind bearer
// authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/", h.delete)
		r.Patch("/confirm", h.confirm)
		r.Patch("/cancel", h.cancel)
		r.Patch("/deliver", h.deliver)
		if h.invoice != nil {
			r.Method(http.MethodGet, "/invoice", h.invoice)
		}
	})
}

// saleView decorates a sale with the actions its status offers.
type saleView struct {
	*Sale
	Actions []Action `json:"actions"`
}

func view(s *Sale) saleView {
	return saleView{Sale: s, Actions: s.Actions()}
}

type listResponse struct {
	Sales      []saleView        `json:"sales"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	filter := ListFilter{Limit: perPage, Offset: shared.Offset(page, perPage)}
	if raw := q.Get("status"); raw != "" {
		status := Status(strings.ToLower(raw))
		filter.Status = &status
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		filter.CustomerID = &id
	}

	result, err := h.service.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.fail(w, r, "list sales", err)
		return
	}
	views := make([]saleView, len(result.Sales))
	for i := range result.Sales {
		views[i] = view(&result.Sales[i])
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Sales:      views,
		Pagination: shared.NewPagination(page, perPage, result.Total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(sale))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload Payload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Create(r.Context(), actorFrom(r), payload, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.fail(w, r, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view(sale))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	var payload Payload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Update(r.Context(), actorFrom(r), id, payload)
	if err != nil {
		h.fail(w, r, "update sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(sale))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		h.fail(w, r, "delete sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Confirm(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, "confirm sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(sale))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Cancel(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, "cancel sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(sale))
}

type deliverRequest struct {
	DeliveryDate string `json:"delivery_date"`
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	var req deliverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, err)
		return
	}
	date, err := ParseDeliveryDate(req.DeliveryDate)
	if err != nil {
		httpx.RespondError(w, ValidationErrors{{Kind: KindInvalidField, Field: "delivery_date", Message: err.Error()}})
		return
	}
	sale, err := h.service.Deliver(r.Context(), actorFrom(r), id, date)
	if err != nil {
		h.fail(w, r, "deliver sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(sale))
}

// ParseDeliveryDate accepts RFC 3339 timestamps or plain dates. Empty input
// yields nil.
func ParseDeliveryDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verrs ValidationErrors
	if !errors.As(err, &verrs) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidStatus) {
		h.logger.Error(op+" failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func saleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid sale id")
		return 0, false
	}
	return id, true
}

func actorFrom(r *http.Request) Actor {
	p, _ := auth.PrincipalFromContext(r.Context())
	return Actor{CompanyID: p.CompanyID, UserID: p.UserID}
}
