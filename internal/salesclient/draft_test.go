package salesclient

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganacsi/ganacsi/internal/sales"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(t *testing.T, draft *Draft, index int, product, qty, price, discount, tax string) {
	t.Helper()
	require.NoError(t, draft.UpdateLineItem(index, FieldProduct, product))
	require.NoError(t, draft.UpdateLineItem(index, FieldQty, qty))
	require.NoError(t, draft.UpdateLineItem(index, FieldPrice, price))
	require.NoError(t, draft.UpdateLineItem(index, FieldDiscount, discount))
	require.NoError(t, draft.UpdateLineItem(index, FieldTax, tax))
}

func validDraft(t *testing.T) Draft {
	t.Helper()
	draft := Draft{CustomerID: "1", StoreID: "2", AccountID: "3", Paid: "20"}
	draft.AddLineItem()
	fill(t, &draft, 0, "10", "2", "10", "1", "0.5")
	return draft
}

func TestUpdateLineItemRecomputesOnlyThatItem(t *testing.T) {
	draft := validDraft(t)
	assert.True(t, d("20.5").Equal(draft.Items[0].Subtotal))

	draft.AddLineItem()
	assert.True(t, draft.Items[1].Subtotal.IsZero())
	require.NoError(t, draft.UpdateLineItem(1, FieldQty, "3"))
	require.NoError(t, draft.UpdateLineItem(1, FieldPrice, "4"))
	assert.True(t, d("12").Equal(draft.Items[1].Subtotal))
	assert.True(t, d("20.5").Equal(draft.Items[0].Subtotal))

	require.NoError(t, draft.UpdateLineItem(0, FieldDiscount, "0"))
	assert.True(t, d("21.5").Equal(draft.Items[0].Subtotal))
	assert.True(t, d("33.5").Equal(draft.Amount()))
	assert.True(t, d("13.5").Equal(draft.BalanceDue()))

	// Partially typed input counts as zero until it parses.
	require.NoError(t, draft.UpdateLineItem(1, FieldPrice, "4."))
	require.NoError(t, draft.UpdateLineItem(1, FieldPrice, "abc"))
	assert.True(t, draft.Items[1].Subtotal.IsZero())
}

func TestLineItemIndexBounds(t *testing.T) {
	var draft Draft
	assert.ErrorIs(t, draft.RemoveLineItem(0), ErrItemIndex)
	assert.ErrorIs(t, draft.UpdateLineItem(0, FieldQty, "1"), ErrItemIndex)

	draft.AddLineItem()
	assert.Error(t, draft.UpdateLineItem(0, Field("colour"), "red"))
	require.NoError(t, draft.RemoveLineItem(0))
	assert.Empty(t, draft.Items)
}

func TestValidateForSubmissionOverpayment(t *testing.T) {
	draft := validDraft(t)
	draft.Paid = "25"

	_, err := ValidateForSubmission(draft)
	var verrs sales.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has(sales.KindOverpayment))
	assert.ErrorIs(t, err, sales.ErrOverpayment)
}

func TestValidateForSubmissionReportsEveryKind(t *testing.T) {
	t.Run("missing references and empty list", func(t *testing.T) {
		_, err := ValidateForSubmission(Draft{})
		var verrs sales.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.True(t, verrs.Has(sales.KindMissingReference))
		assert.True(t, verrs.Has(sales.KindEmptyItemList))

		refs := 0
		for _, e := range verrs {
			if e.Kind == sales.KindMissingReference {
				refs++
			}
		}
		assert.Equal(t, 3, refs)
	})

	t.Run("invalid items by index", func(t *testing.T) {
		draft := validDraft(t)
		draft.AddLineItem()
		fill(t, &draft, 1, "11", "0", "-1", "", "")

		_, err := ValidateForSubmission(draft)
		var verrs sales.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Empty(t, verrs.ForItem(0))
		fields := []string{}
		for _, e := range verrs.ForItem(1) {
			assert.Equal(t, sales.KindInvalidLineItem, e.Kind)
			fields = append(fields, e.Field)
		}
		assert.ElementsMatch(t, []string{"qty", "price"}, fields)
	})

	t.Run("non numeric input is reported once", func(t *testing.T) {
		draft := validDraft(t)
		draft.Items[0].Qty = "two"
		draft.CustomerID = "abc"

		_, err := ValidateForSubmission(draft)
		var verrs sales.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		item := verrs.ForItem(0)
		require.Len(t, item, 1)
		assert.Equal(t, "must be a number", item[0].Message)

		customer := 0
		for _, e := range verrs {
			if e.Field == "customer_id" {
				customer++
				assert.Equal(t, sales.KindInvalidField, e.Kind)
			}
		}
		assert.Equal(t, 1, customer)
	})
}

func TestValidateForSubmissionNormalises(t *testing.T) {
	draft := validDraft(t)
	draft.CustomerID = " 7 "
	draft.Items[0].Price = " 10.5 "
	draft.Paid = ""
	draft.Notes = "  leave at the door  "
	draft.DeliveryDate = "2024-05-01"

	p, err := ValidateForSubmission(draft)
	require.NoError(t, err)
	assert.Equal(t, sales.Ref(7), p.CustomerID)
	assert.True(t, d("10.5").Equal(p.Items[0].Price))
	assert.True(t, d("2").Equal(p.Items[0].Qty))
	assert.True(t, p.Paid.IsZero())
	require.NotNil(t, p.Notes)
	assert.Equal(t, "leave at the door", *p.Notes)
	require.NotNil(t, p.DeliveryDate)
	assert.Equal(t, "2024-05-01", p.DeliveryDate.Format("2006-01-02"))
}

func TestDraftFromSale(t *testing.T) {
	notes := "fragile"
	sale := sales.Sale{
		ID: 4, CustomerID: 1, StoreID: 2, AccountID: 3,
		Paid:  d("5"),
		Notes: &notes,
		Items: []sales.LineItem{{ProductID: 10, Qty: 2, Price: d("10"), Discount: d("1"), Tax: d("0.5")}},
	}
	draft := DraftFrom(sale)
	assert.Equal(t, int64(4), draft.ID)
	assert.Equal(t, "fragile", draft.Notes)
	assert.True(t, d("20.5").Equal(draft.Amount()))

	p, err := ValidateForSubmission(draft)
	require.NoError(t, err)
	assert.Equal(t, sales.Ref(10), p.Items[0].ProductID)
}

func TestValidateForSubmissionChecksRoundedValues(t *testing.T) {
	draft := Draft{CustomerID: "1", StoreID: "2", AccountID: "3", Paid: "3.01"}
	for i := 0; i < 3; i++ {
		draft.AddLineItem()
		fill(t, &draft, i, "10", "1", "1.004", "0", "0")
	}
	_, err := ValidateForSubmission(draft)
	assert.ErrorIs(t, err, sales.ErrOverpayment)

	draft.Paid = "0"
	require.NoError(t, draft.UpdateLineItem(0, FieldPrice, "0.004"))
	_, err = ValidateForSubmission(draft)
	var verrs sales.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.ForItem(0), 1)
	assert.Equal(t, "price", verrs.ForItem(0)[0].Field)

	require.NoError(t, draft.UpdateLineItem(0, FieldPrice, "1"))
	require.NoError(t, draft.UpdateLineItem(0, FieldQty, "9223372036854775808"))
	assert.True(t, draft.Items[0].Subtotal.IsPositive())
	_, err = ValidateForSubmission(draft)
	require.ErrorAs(t, err, &verrs)
	assert.False(t, verrs.Has(sales.KindOverpayment))
	assert.Equal(t, "qty", verrs.ForItem(0)[0].Field)
}
