package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/biogen/svc/billing"
)

func TestExpectedChargeConfirm(t *testing.T) {
	t.Parallel()

	expected := billing.ExpectedCharge{Amount: 2.99, Currency: "USD"}

	tests := []struct {
		name string
		tx   billing.Transaction
		err  error
	}{
		{
			name: "exact match",
			tx:   billing.Transaction{Status: "successful", Amount: 2.99, Currency: "USD"},
		},
		{
			name: "succeeded alias",
			tx:   billing.Transaction{Status: "succeeded", Amount: 2.99, Currency: "USD"},
		},
		{
			name: "currency compared exactly",
			tx:   billing.Transaction{Status: "successful", Amount: 2.99, Currency: "usd"},
			err:  billing.ErrChargeMismatch,
		},
		{
			name: "pending status",
			tx:   billing.Transaction{Status: "pending", Amount: 2.99, Currency: "USD"},
			err:  billing.ErrTransactionNotSuccessful,
		},
		{
			name: "amount short by a cent",
			tx:   billing.Transaction{Status: "successful", Amount: 2.98, Currency: "USD"},
			err:  billing.ErrChargeMismatch,
		},
		{
			name: "amount overpaid",
			tx:   billing.Transaction{Status: "successful", Amount: 3.99, Currency: "USD"},
			err:  billing.ErrChargeMismatch,
		},
		{
			name: "wrong currency",
			tx:   billing.Transaction{Status: "successful", Amount: 2.99, Currency: "NGN"},
			err:  billing.ErrChargeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := expected.Confirm(&tt.tx)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
