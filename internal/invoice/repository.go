package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// ErrCustomerNotFound is returned when the billed customer does not exist.
var ErrCustomerNotFound = fmt.Errorf("customer %w", httpx.ErrNotFound)

// Repository reads the customer and product data an invoice needs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Customer loads a customer of the company.
func (r *Repository) Customer(ctx context.Context, companyID, id int64) (Customer, error) {
	var c Customer
	var address, phone, email *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, address, phone, email FROM customers
		WHERE company_id = $1 AND id = $2`, companyID, id).
		Scan(&c.ID, &c.Name, &address, &phone, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	c.Address, c.Phone, c.Email = deref(address), deref(phone), deref(email)
	return c, nil
}

// ProductNames maps product ids to names.
func (r *Repository) ProductNames(ctx context.Context, companyID int64, ids []int64) (map[int64]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM products WHERE company_id = $1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("query product names: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan product name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
