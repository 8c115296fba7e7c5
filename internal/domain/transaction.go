package domain

import (
	"github.com/shopspring/decimal"
)

// RawRecord is one line of a transaction export keyed by header name.
// Values are untyped; nothing about uniqueness is assumed.
type RawRecord map[string]string

// Raw export column names.
const (
	RawClientID      = "client_id"
	RawID            = "id"
	RawAmount        = "amount"
	RawDate          = "date"
	RawMCC           = "mcc"
	RawMerchantState = "merchant_state"
)

// CanonicalColumns is the header of every canonical artifact, in order.
var CanonicalColumns = []string{
	"user_id",
	"transaction_id",
	"amount",
	"timestamp",
	"merchant_category",
	"region",
}

// CanonicalRecord represents one normalized transaction ready for the
// destination table. All six fields are set for any record that is emitted.
type CanonicalRecord struct {
	UserID           string          // from "client_id"
	TransactionID    string          // from "id"
	Amount           decimal.Decimal // from "amount", "$" and "," removed
	Timestamp        string          // from "date", passed through
	MerchantCategory string          // from "mcc"
	Region           string          // from "merchant_state"
}

// Row renders the record as CSV cells in CanonicalColumns order.
// The amount never carries a currency symbol or grouping separator and keeps
// at least two fractional digits.
func (r CanonicalRecord) Row() []string {
	return []string{
		r.UserID,
		r.TransactionID,
		FormatAmount(r.Amount),
		r.Timestamp,
		r.MerchantCategory,
		r.Region,
	}
}

// FormatAmount renders a decimal amount with at least two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	places := int32(2)
	if exp := -d.Exponent(); exp > places {
		places = exp
	}
	return d.StringFixed(places)
}
