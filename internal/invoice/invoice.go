// Package invoice projects a sale into a printable invoice.
package invoice

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/web"
)

// Letterhead is the issuing business shown at the top of every invoice.
type Letterhead struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// Customer is the billed party.
type Customer struct {
	ID      int64
	Name    string
	Address string
	Phone   string
	Email   string
}

// Line is one rendered row.
type Line struct {
	No       int
	Product  string
	Qty      int64
	Price    string
	Discount string
	Tax      string
	Subtotal string
}

// Invoice is the read-only projection of a sale.
type Invoice struct {
	Number       string
	IssuedAt     time.Time
	Status       sales.Status
	DeliveryDate *time.Time
	Letterhead   Letterhead
	Customer     Customer
	Lines        []Line
	Amount       string
	Paid         string
	BalanceDue   string
	Notes        string
}

var tmpl = template.Must(template.ParseFS(web.Templates, "templates/invoice.html"))

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Number formats the invoice number of a sale.
func Number(saleID int64) string {
	return fmt.Sprintf("INV-%06d", saleID)
}

// Build projects sale into an invoice. It returns nil when there is nothing
// to show: no sale or a sale without line items. Product names missing from
// products fall back to the product id.
func Build(sale *sales.Sale, customer Customer, letterhead Letterhead, products map[int64]string) *Invoice {
	if sale == nil || len(sale.Items) == 0 {
		return nil
	}
	inv := &Invoice{
		Number:       Number(sale.ID),
		IssuedAt:     sale.CreatedAt,
		Status:       sale.Status,
		DeliveryDate: sale.DeliveryDate,
		Letterhead:   letterhead,
		Customer:     customer,
		Lines:        make([]Line, len(sale.Items)),
	}
	amount := decimal.Zero
	for i, item := range sale.Items {
		name, ok := products[item.ProductID]
		if !ok || name == "" {
			name = "#" + strconv.FormatInt(item.ProductID, 10)
		}
		subtotal := item.ComputeSubtotal()
		amount = amount.Add(subtotal)
		inv.Lines[i] = Line{
			No:       i + 1,
			Product:  name,
			Qty:      item.Qty,
			Price:    money(item.Price),
			Discount: money(item.Discount),
			Tax:      money(item.Tax),
			Subtotal: money(subtotal),
		}
	}
	inv.Amount = money(amount)
	inv.Paid = money(sale.Paid)
	inv.BalanceDue = money(amount.Sub(sale.Paid))
	if sale.Notes != nil {
		inv.Notes = *sale.Notes
	}
	return inv
}

// Render writes the HTML layout of inv. A nil invoice writes nothing.
func Render(w io.Writer, inv *Invoice) error {
	if inv == nil {
		return nil
	}
	if err := tmpl.ExecuteTemplate(w, "invoice", inv); err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return nil
}
