package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-loader/internal/domain"
)

// amountNoise is stripped from raw amounts before parsing.
var amountNoise = strings.NewReplacer("$", "", ",", "")

// TransformRecord maps one raw export record onto the canonical schema.
// A field counts as missing when its key is absent or its value is blank.
// The returned *RowError has Line unset; the batch processor fills it in.
func TransformRecord(raw domain.RawRecord) (domain.CanonicalRecord, error) {
	var rec domain.CanonicalRecord

	fields := []struct {
		key string
		dst *string
	}{
		{domain.RawClientID, &rec.UserID},
		{domain.RawID, &rec.TransactionID},
		{domain.RawDate, &rec.Timestamp},
		{domain.RawMCC, &rec.MerchantCategory},
		{domain.RawMerchantState, &rec.Region},
	}
	for _, f := range fields {
		v, err := requiredField(raw, f.key)
		if err != nil {
			return domain.CanonicalRecord{}, err
		}
		*f.dst = v
	}

	rawAmount, err := requiredField(raw, domain.RawAmount)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	rec.Amount = amount

	return rec, nil
}

func requiredField(raw domain.RawRecord, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &RowError{Field: key, Reason: "missing required field"}
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &RowError{Field: key, Reason: "required field is empty"}
	}
	return v, nil
}

// Bounds of a BigQuery NUMERIC column.
const (
	maxAmountScale   = 9
	maxAmountIntDigs = 29
)

// maxAmount is the smallest magnitude that no longer fits NUMERIC.
var maxAmount = decimal.New(1, maxAmountIntDigs)

// parseAmount accepts values such as "$1,234.50" or "-$77.00". Exponent
// forms are rejected, as is anything outside the NUMERIC range.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountNoise.Replace(s))
	if strings.ContainsAny(cleaned, "eE") {
		return decimal.Decimal{}, &RowError{Field: domain.RawAmount, Value: s, Reason: "amount is not a plain decimal"}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &RowError{Field: domain.RawAmount, Value: s, Reason: "amount is not numeric"}
	}
	if -d.Exponent() > maxAmountScale {
		return decimal.Decimal{}, &RowError{Field: domain.RawAmount, Value: s, Reason: "amount has too many decimal places"}
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return decimal.Decimal{}, &RowError{Field: domain.RawAmount, Value: s, Reason: "amount is out of range"}
	}
	return d, nil
}
