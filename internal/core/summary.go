package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BucketTotal aggregates all records sharing a bucket.
type BucketTotal struct {
	Bucket        string
	TotalAmount   decimal.Decimal
	TotalQuantity int64
	Records       []Record
}

// GrandTotal is the sum over a record set, full or filtered.
type GrandTotal struct {
	TotalAmount   decimal.Decimal
	TotalQuantity int64
	Count         int
}

// ProfitTotals sums a profit report. Margins are percentages and only
// meaningful when HasMargins is true (revenue above zero).
type ProfitTotals struct {
	Revenue     decimal.Decimal
	COGS        decimal.Decimal
	Expenses    decimal.Decimal
	Profit      decimal.Decimal
	GrossProfit decimal.Decimal
	GrossMargin decimal.Decimal
	NetMargin   decimal.Decimal
	HasMargins  bool
	Periods     int
}

type StockSummary struct {
	Products    int
	Units       int64
	CostValue   decimal.Decimal // stock at buying price
	RetailValue decimal.Decimal // stock at selling price
	LowStock    int
}

// RecordError describes an input row rejected during decoding.
type RecordError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d: field %s=%q: %v", e.Index, e.Field, e.Value, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// Batch is a decoded payload: the accepted items plus every row that was
// rejected for data-integrity reasons.
type Batch[T any] struct {
	Items    []T
	Rejected []RecordError
}

// Len returns the number of accepted items.
func (b Batch[T]) Len() int {
	return len(b.Items)
}

// Warnings renders the rejected rows as messages.
func (b Batch[T]) Warnings() []string {
	if len(b.Rejected) == 0 {
		return nil
	}
	out := make([]string, len(b.Rejected))
	for i, r := range b.Rejected {
		out[i] = r.Error()
	}
	return out
}
