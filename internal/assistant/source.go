package assistant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// DataSource reads tenant records for answers.
type DataSource interface {
	Accounts(ctx context.Context, companyID int64) ([]Account, error)
	Products(ctx context.Context, companyID int64) ([]Product, error)
	Sales(ctx context.Context, companyID int64) ([]Deal, error)
	Purchases(ctx context.Context, companyID int64) ([]Deal, error)
	Customers(ctx context.Context, companyID int64) ([]Party, error)
	Suppliers(ctx context.Context, companyID int64) ([]Party, error)
}

// Load fetches the records each intent needs concurrently.
func Load(ctx context.Context, src DataSource, companyID int64, intents []Intent) (Data, error) {
	var data Data
	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[Intent]bool, len(intents))
	for _, intent := range intents {
		if seen[intent] {
			continue
		}
		seen[intent] = true
		switch intent {
		case IntentAccounts:
			g.Go(func() (err error) {
				data.Accounts, err = src.Accounts(gctx, companyID)
				return wrapLoad(intent, err)
			})
		case IntentInventory:
			g.Go(func() (err error) {
				data.Products, err = src.Products(gctx, companyID)
				return wrapLoad(intent, err)
			})
		case IntentSales:
			g.Go(func() (err error) {
				data.Sales, err = src.Sales(gctx, companyID)
				return wrapLoad(intent, err)
			})
		case IntentPurchases:
			g.Go(func() (err error) {
				data.Purchases, err = src.Purchases(gctx, companyID)
				return wrapLoad(intent, err)
			})
		case IntentCustomers:
			g.Go(func() (err error) {
				data.Customers, err = src.Customers(gctx, companyID)
				return wrapLoad(intent, err)
			})
		case IntentSuppliers:
			g.Go(func() (err error) {
				data.Suppliers, err = src.Suppliers(gctx, companyID)
				return wrapLoad(intent, err)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Data{}, err
	}
	return data, nil
}

func wrapLoad(intent Intent, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", intent, err)
	}
	return nil
}

// Repository reads answer data from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres data source.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const answerRowLimit = 500

// Accounts lists cash and bank accounts.
func (r *Repository) Accounts(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, balance FROM accounts
WHERE company_id = $1 ORDER BY name LIMIT $2`, companyID, answerRowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Name, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Products lists inventory lines.
func (r *Repository) Products(ctx context.Context, companyID int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, quantity, price FROM products
WHERE company_id = $1 ORDER BY name LIMIT $2`, companyID, answerRowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Name, &p.Quantity, &p.Price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Sales lists recent sales with customer names.
func (r *Repository) Sales(ctx context.Context, companyID int64) ([]Deal, error) {
	return r.deals(ctx, `SELECT s.id, COALESCE(c.name, ''), s.amount, s.status
FROM sales s
LEFT JOIN customers c ON c.id = s.customer_id AND c.company_id = s.company_id
WHERE s.company_id = $1
ORDER BY s.created_at DESC, s.id DESC
LIMIT $2`, companyID)
}

// Purchases lists recent purchases with supplier names.
func (r *Repository) Purchases(ctx context.Context, companyID int64) ([]Deal, error) {
	return r.deals(ctx, `SELECT p.id, COALESCE(s.name, ''), p.amount, p.status
FROM purchases p
LEFT JOIN suppliers s ON s.id = p.supplier_id AND s.company_id = p.company_id
WHERE p.company_id = $1
ORDER BY p.created_at DESC, p.id DESC
LIMIT $2`, companyID)
}

func (r *Repository) deals(ctx context.Context, query string, companyID int64) ([]Deal, error) {
	rows, err := r.pool.Query(ctx, query, companyID, answerRowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.Counterparty, &d.Amount, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Customers lists customers with their outstanding balance.
func (r *Repository) Customers(ctx context.Context, companyID int64) ([]Party, error) {
	return r.parties(ctx, `SELECT name, balance FROM customers
WHERE company_id = $1 ORDER BY name LIMIT $2`, companyID)
}

// Suppliers lists suppliers with the balance owed to them.
func (r *Repository) Suppliers(ctx context.Context, companyID int64) ([]Party, error) {
	return r.parties(ctx, `SELECT name, balance FROM suppliers
WHERE company_id = $1 ORDER BY name LIMIT $2`, companyID)
}

func (r *Repository) parties(ctx context.Context, query string, companyID int64) ([]Party, error) {
	rows, err := r.pool.Query(ctx, query, companyID, answerRowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.Name, &p.Balance); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
