// Package assistant answers business questions from tenant data with
// templated English and Somali replies.
package assistant

import (
	"strings"
)

// Intent is a recognised question topic.
type Intent string

const (
	IntentAccounts  Intent = "accounts"
	IntentInventory Intent = "inventory"
	IntentSales     Intent = "sales"
	IntentPurchases Intent = "purchases"
	IntentCustomers Intent = "customers"
	IntentSuppliers Intent = "suppliers"
)

// Intents lists every recognised intent.
var Intents = []Intent{IntentAccounts, IntentInventory, IntentSales, IntentPurchases, IntentCustomers, IntentSuppliers}

// IsValid checks if the intent is recognised.
func (i Intent) IsValid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// Matched words are blanked out, so "alaab-qeybiye" (supplier) never also
// reads as "alaab" (inventory) and "iibsi" (purchase) never as "iib" (sale).
var keywords = []struct {
	intent Intent
	words  []string
}{
	{IntentSuppliers, []string{"alaab-qeybiye", "supplier", "vendor", "qeybiye", "qaybiye"}},
	{IntentPurchases, []string{"purchase", "bought", "iibsi", "iibsad"}},
	{IntentCustomers, []string{"customer", "client", "macmiil"}},
	{IntentAccounts, []string{"account", "cash", "bank", "akoon", "xisaab", "lacag"}},
	{IntentSales, []string{"sale", "sold", "revenue", "iib"}},
	{IntentInventory, []string{"inventory", "stock", "product", "bakhaar", "alaab", "kayd"}},
}

// DetectIntents returns every intent mentioned in text, in a stable order.
func DetectIntents(text string) []Intent {
	lower := strings.ToLower(text)
	var found []Intent
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				found = append(found, k.intent)
				lower = strings.ReplaceAll(lower, w, " ")
				break
			}
		}
	}
	return found
}

// DetectIntent returns the first intent mentioned in text.
func DetectIntent(text string) (Intent, bool) {
	found := DetectIntents(text)
	if len(found) == 0 {
		return "", false
	}
	return found[0], true
}
