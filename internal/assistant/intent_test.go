package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntents(t *testing.T) {
	tests := []struct {
		question string
		want     []Intent
	}{
		{"How much stock do I have?", []Intent{IntentInventory}},
		{"Show my accounts", []Intent{IntentAccounts}},
		{"What did I sell? Any sales today?", []Intent{IntentSales}},
		{"List purchases and suppliers", []Intent{IntentSuppliers, IntentPurchases}},
		{"Who are my top customers?", []Intent{IntentCustomers}},
		{"Immisa iib ayaan sameeyay?", []Intent{IntentSales}},
		{"Iibsiyada maanta", []Intent{IntentPurchases}},
		{"Meeqa alaab-qeybiye ayaan leeyahay?", []Intent{IntentSuppliers}},
		{"Alaabta bakhaarka", []Intent{IntentInventory}},
		{"Macmiil cusub", []Intent{IntentCustomers}},
		{"What is the weather like?", nil},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectIntents(tt.question))
		})
	}
}

func TestDetectIntentReturnsFirst(t *testing.T) {
	intent, ok := DetectIntent("customers and accounts")
	assert.True(t, ok)
	assert.Equal(t, IntentCustomers, intent)

	_, ok = DetectIntent("hello")
	assert.False(t, ok)
}

func TestMatchLanguage(t *testing.T) {
	assert.Equal(t, Somali, Match("so"))
	assert.Equal(t, Somali, Match("so-SO,en;q=0.5"))
	assert.Equal(t, English, Match("en-US"))
	assert.Equal(t, English, Match("fr"))
	assert.Equal(t, English, Match(""))
}
