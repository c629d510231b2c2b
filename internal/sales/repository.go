package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganacsi/ganacsi/internal/platform/db"
	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

var (
	ErrNotFound        = fmt.Errorf("sale %w", httpx.ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", httpx.ErrNotFound)
	ErrInvalidStatus   = fmt.Errorf("%w: invalid status transition", httpx.ErrConflict)
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, sale *Sale) (int64, error)
	Replace(ctx context.Context, sale *Sale) error
	GetForUpdate(ctx context.Context, companyID, id int64) (*Sale, error)
	UpdateStatus(ctx context.Context, companyID, id int64, status Status, deliveryDate *time.Time) error
	Delete(ctx context.Context, companyID, id int64) error
	AdjustStock(ctx context.Context, companyID, productID, delta int64) error
	RecordEvent(ctx context.Context, event Event) error
	FindReferences(ctx context.Context, companyID, customerID, accountID int64, productIDs []int64) (References, error)
}

// References reports which of the ids a sale points at exist in the company.
type References struct {
	Customer bool
	Account  bool
	Products map[int64]bool
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const saleColumns = `id, company_id, customer_id, store_id, account_id, status, amount, paid,
	notes, delivery_date, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.CompanyID, &s.CustomerID, &s.StoreID, &s.AccountID, &status,
		&s.Amount, &s.Paid, &s.Notes, &s.DeliveryDate, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = Status(status)
	s.BalanceDue = s.Amount.Sub(s.Paid)
	return &s, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, saleIDs ...int64) (map[int64][]LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sale_id, product_id, qty, price, discount, tax, subtotal, line_order
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_order`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("query sale items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]LineItem, len(saleIDs))
	for rows.Next() {
		var item LineItem
		var saleID int64
		if err := rows.Scan(&item.ID, &saleID, &item.ProductID, &item.Qty, &item.Price,
			&item.Discount, &item.Tax, &item.Subtotal, &item.LineOrder); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		out[saleID] = append(out[saleID], item)
	}
	return out, rows.Err()
}

// Get retrieves a sale with its items, scoped to the company.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE company_id = $1 AND id = $2`, companyID, id)
	sale, err := scanSale(row)
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items[id]
	if sale.Items == nil {
		sale.Items = []LineItem{}
	}
	return sale, nil
}

// List returns a filtered page of sales and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where := []string{"company_id = $1"}
	args := []any{filter.CompanyID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM sales WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		saleColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]Sale, 0, filter.Limit)
	ids := make([]int64, 0, filter.Limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return sales, total, nil
	}

	items, err := loadItems(ctx, r.pool, ids...)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []LineItem{}
		}
	}
	return sales, total, nil
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) Insert(ctx context.Context, sale *Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (company_id, customer_id, store_id, account_id, status, amount, paid,
		                   notes, delivery_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		sale.CompanyID, sale.CustomerID, sale.StoreID, sale.AccountID, string(sale.Status),
		sale.Amount, sale.Paid, sale.Notes, sale.DeliveryDate, sale.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}
	if err := t.insertItems(ctx, id, sale.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txRepo) insertItems(ctx context.Context, saleID int64, items []LineItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO sale_items (sale_id, product_id, qty, price, discount, tax, subtotal, line_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			saleID, item.ProductID, item.Qty, item.Price, item.Discount, item.Tax,
			item.ComputeSubtotal(), item.LineOrder)
	}
	res := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return res.Close()
}

func (t *txRepo) Replace(ctx context.Context, sale *Sale) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET customer_id = $3, store_id = $4, account_id = $5, amount = $6, paid = $7,
		    notes = $8, delivery_date = $9, updated_at = NOW()
		WHERE company_id = $1 AND id = $2`,
		sale.CompanyID, sale.ID, sale.CustomerID, sale.StoreID, sale.AccountID,
		sale.Amount, sale.Paid, sale.Notes, sale.DeliveryDate)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return fmt.Errorf("delete sale items: %w", err)
	}
	return t.insertItems(ctx, sale.ID, sale.Items)
}

func (t *txRepo) GetForUpdate(ctx context.Context, companyID, id int64) (*Sale, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
	sale, err := scanSale(row)
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items[id]
	return sale, nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, companyID, id int64, status Status, deliveryDate *time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET status = $3, delivery_date = COALESCE($4, delivery_date), updated_at = NOW()
		WHERE company_id = $1 AND id = $2`,
		companyID, id, string(status), deliveryDate)
	if err != nil {
		return fmt.Errorf("update sale status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) AdjustStock(ctx context.Context, companyID, productID, delta int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products SET quantity = quantity + $3
		WHERE company_id = $1 AND id = $2`,
		companyID, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock for product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return nil
}

func (t *txRepo) FindReferences(ctx context.Context, companyID, customerID, accountID int64, productIDs []int64) (References, error) {
	refs := References{Products: make(map[int64]bool, len(productIDs))}
	var found []int64
	err := t.tx.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM customers WHERE company_id = $1 AND id = $2),
			EXISTS (SELECT 1 FROM accounts WHERE company_id = $1 AND id = $3),
			COALESCE((SELECT array_agg(id) FROM products WHERE company_id = $1 AND id = ANY($4)), '{}')`,
		companyID, customerID, accountID, productIDs).Scan(&refs.Customer, &refs.Account, &found)
	if err != nil {
		return References{}, fmt.Errorf("find sale references: %w", err)
	}
	for _, id := range found {
		refs.Products[id] = true
	}
	return refs, nil
}

func (t *txRepo) RecordEvent(ctx context.Context, event Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sale_events (id, sale_id, company_id, event, from_status, to_status, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.SaleID, event.CompanyID, event.Name, string(event.From), string(event.To),
		event.Payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("record sale event: %w", err)
	}
	return nil
}
