package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/txn-loader/internal/domain"
)

func validRaw() domain.RawRecord {
	return domain.RawRecord{
		"client_id":      "1556",
		"id":             "7475327",
		"amount":         "$1,234.50",
		"date":           "2010-01-01 00:01:00",
		"mcc":            "5499",
		"merchant_state": "ND",
	}
}

func TestTransformRecord(t *testing.T) {
	rec, err := TransformRecord(validRaw())
	require.NoError(t, err)

	assert.Equal(t, "1556", rec.UserID)
	assert.Equal(t, "7475327", rec.TransactionID)
	assert.Equal(t, "1234.50", domain.FormatAmount(rec.Amount))
	assert.Equal(t, "2010-01-01 00:01:00", rec.Timestamp)
	assert.Equal(t, "5499", rec.MerchantCategory)
	assert.Equal(t, "ND", rec.Region)
}

func TestTransformRecord_Amounts(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"$12.00", "12.00"},
		{"-$77.00", "-77.00"},
		{"$1,000,000", "1000000.00"},
		{" 3.5 ", "3.50"},
		{"$0.125", "0.125"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			raw := validRaw()
			raw["amount"] = tt.raw

			rec, err := TransformRecord(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, domain.FormatAmount(rec.Amount))
		})
	}
}

func TestTransformRecord_Errors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r domain.RawRecord)
		wantField  string
		wantReason string
	}{
		{"missing client_id", func(r domain.RawRecord) { delete(r, "client_id") }, "client_id", "missing required field"},
		{"blank merchant_state", func(r domain.RawRecord) { r["merchant_state"] = "  " }, "merchant_state", "required field is empty"},
		{"missing amount", func(r domain.RawRecord) { delete(r, "amount") }, "amount", "missing required field"},
		{"non-numeric amount", func(r domain.RawRecord) { r["amount"] = "abc" }, "amount", "amount is not numeric"},
		{"only symbols", func(r domain.RawRecord) { r["amount"] = "$," }, "amount", "amount is not numeric"},
		{"tiny exponent", func(r domain.RawRecord) { r["amount"] = "1e-20000000" }, "amount", "amount is not a plain decimal"},
		{"dollar exponent", func(r domain.RawRecord) { r["amount"] = "$1e5" }, "amount", "amount is not a plain decimal"},
		{"large exponent", func(r domain.RawRecord) { r["amount"] = "1E400000" }, "amount", "amount is not a plain decimal"},
		{"too many decimals", func(r domain.RawRecord) { r["amount"] = "0.0000000001" }, "amount", "amount has too many decimal places"},
		{"too large", func(r domain.RawRecord) { r["amount"] = "$" + strings.Repeat("9", 30) }, "amount", "amount is out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(raw)

			_, err := TransformRecord(raw)
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, tt.wantField, rowErr.Field)
			assert.Equal(t, tt.wantReason, rowErr.Reason)
		})
	}
}

func TestTransformRecord_AmountBounds(t *testing.T) {
	raw := validRaw()
	raw["amount"] = "-$" + strings.Repeat("9", 29) + ".123456789"

	rec, err := TransformRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "-"+strings.Repeat("9", 29)+".123456789", rec.Row()[2])
}

func TestTransformRecord_ExtraColumnsIgnored(t *testing.T) {
	raw := validRaw()
	raw["errors"] = "Insufficient Balance"

	rec, err := TransformRecord(raw)
	require.NoError(t, err)
	assert.Len(t, rec.Row(), len(domain.CanonicalColumns))
}
