package assistant

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TopN bounds the sorted sublists quoted in aggregate replies.
const TopN = 3

// Account is a cash or bank account.
type Account struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// Product is an inventory line.
type Product struct {
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Deal summarises a sale or a purchase with its counterparty name.
type Deal struct {
	ID           int64           `json:"id"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
}

// Party is a customer or supplier with an outstanding balance.
type Party struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// Data holds the tenant records an answer draws from. Only the slice
// matching the intent is read.
type Data struct {
	Accounts  []Account
	Products  []Product
	Sales     []Deal
	Purchases []Deal
	Customers []Party
	Suppliers []Party
}

// Respond renders the reply for intent in lang. It reports false for an
// unrecognised intent.
func Respond(intent Intent, data Data, lang language.Tag) (string, bool) {
	if !intent.IsValid() {
		return "", false
	}
	p := printerFor(lang)

	switch intent {
	case IntentAccounts:
		return accounts(p, data.Accounts), true
	case IntentInventory:
		return inventory(p, data.Products), true
	case IntentSales:
		return deals(p, IntentSales, data.Sales), true
	case IntentPurchases:
		return deals(p, IntentPurchases, data.Purchases), true
	case IntentCustomers:
		return parties(p, IntentCustomers, data.Customers), true
	case IntentSuppliers:
		return parties(p, IntentSuppliers, data.Suppliers), true
	}
	return "", false
}

func accounts(p *message.Printer, list []Account) string {
	switch len(list) {
	case 0:
		return p.Sprintf(messageKey(IntentAccounts, variantNone))
	case 1:
		return p.Sprintf(messageKey(IntentAccounts, variantOne), list[0].Name, money(list[0].Balance))
	}
	total := decimal.Zero
	items := make([]ranked, len(list))
	for i, a := range list {
		total = total.Add(a.Balance)
		items[i] = rankedItem(a.Name, a.Balance)
	}
	return p.Sprintf(messageKey(IntentAccounts, variantMany), len(list), money(total), top(p, items))
}

func inventory(p *message.Printer, list []Product) string {
	switch len(list) {
	case 0:
		return p.Sprintf(messageKey(IntentInventory, variantNone))
	case 1:
		return p.Sprintf(messageKey(IntentInventory, variantOne), list[0].Name, list[0].Quantity, money(list[0].Price))
	}
	var units int64
	items := make([]ranked, len(list))
	for i, prod := range list {
		units += prod.Quantity
		items[i] = rankedItem(prod.Name, decimal.NewFromInt(prod.Quantity))
	}
	return p.Sprintf(messageKey(IntentInventory, variantMany), len(list), units, topUnits(p, items))
}

func deals(p *message.Printer, intent Intent, list []Deal) string {
	switch len(list) {
	case 0:
		return p.Sprintf(messageKey(intent, variantNone))
	case 1:
		return p.Sprintf(messageKey(intent, variantOne), list[0].Counterparty, money(list[0].Amount), list[0].Status)
	}
	total := decimal.Zero
	items := make([]ranked, len(list))
	for i, d := range list {
		total = total.Add(d.Amount)
		items[i] = rankedItem(d.Counterparty, d.Amount)
	}
	return p.Sprintf(messageKey(intent, variantMany), len(list), money(total), top(p, items))
}

func parties(p *message.Printer, intent Intent, list []Party) string {
	switch len(list) {
	case 0:
		return p.Sprintf(messageKey(intent, variantNone))
	case 1:
		return p.Sprintf(messageKey(intent, variantOne), list[0].Name, money(list[0].Balance))
	}
	total := decimal.Zero
	items := make([]ranked, len(list))
	for i, party := range list {
		total = total.Add(party.Balance)
		items[i] = rankedItem(party.Name, party.Balance)
	}
	return p.Sprintf(messageKey(intent, variantMany), len(list), money(total), top(p, items))
}

type ranked struct {
	label string
	value decimal.Decimal
}

func rankedItem(label string, value decimal.Decimal) ranked {
	return ranked{label: label, value: value}
}

// rank sorts descending by value, ties by label, and keeps the first TopN.
func rank(items []ranked) []ranked {
	out := append([]ranked(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].value.Cmp(out[j].value); c != 0 {
			return c > 0
		}
		return out[i].label < out[j].label
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func top(p *message.Printer, items []ranked) string {
	parts := make([]string, 0, TopN)
	for _, item := range rank(items) {
		parts = append(parts, p.Sprintf(keyTopItem, item.label, money(item.value)))
	}
	return strings.Join(parts, p.Sprintf(keySeparator))
}

func topUnits(p *message.Printer, items []ranked) string {
	parts := make([]string, 0, TopN)
	for _, item := range rank(items) {
		parts = append(parts, p.Sprintf("%s (%d)", item.label, item.value.IntPart()))
	}
	return strings.Join(parts, p.Sprintf(keySeparator))
}

// money converts for display only; sums are computed in decimal.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
