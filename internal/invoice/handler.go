package invoice

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ganacsi/ganacsi/internal/auth"
	"github.com/ganacsi/ganacsi/internal/platform/httpx"
	"github.com/ganacsi/ganacsi/internal/sales"
)

// SaleReader loads a tenant-scoped sale.
type SaleReader interface {
	Get(ctx context.Context, actor sales.Actor, id int64) (*sales.Sale, error)
}

// Directory resolves names printed on an invoice.
type Directory interface {
	Customer(ctx context.Context, companyID, id int64) (Customer, error)
	ProductNames(ctx context.Context, companyID int64, ids []int64) (map[int64]string, error)
}

// Handler serves GET /api/sales/{id}/invoice.
type Handler struct {
	logger     *slog.Logger
	sales      SaleReader
	directory  Directory
	letterhead Letterhead
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, sales SaleReader, directory Directory, letterhead Letterhead) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, sales: sales, directory: directory, letterhead: letterhead}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	ctx := r.Context()

	sale, err := h.sales.Get(ctx, sales.Actor{CompanyID: principal.CompanyID, UserID: principal.UserID}, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(sale.Items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	customer, err := h.directory.Customer(ctx, principal.CompanyID, sale.CustomerID)
	if err != nil {
		if !errors.Is(err, ErrCustomerNotFound) {
			h.logger.Error("load invoice customer", slog.Any("error", err), slog.Int64("sale_id", id))
			httpx.RespondError(w, err)
			return
		}
		customer = Customer{ID: sale.CustomerID, Name: "Customer #" + strconv.FormatInt(sale.CustomerID, 10)}
	}

	ids := make([]int64, len(sale.Items))
	for i, item := range sale.Items {
		ids[i] = item.ProductID
	}
	products, err := h.directory.ProductNames(ctx, principal.CompanyID, ids)
	if err != nil {
		h.logger.Warn("load invoice product names", slog.Any("error", err), slog.Int64("sale_id", id))
	}

	var buf bytes.Buffer
	if err := Render(&buf, Build(sale, customer, h.letterhead, products)); err != nil {
		h.logger.Error("render invoice", slog.Any("error", err), slog.Int64("sale_id", id))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
