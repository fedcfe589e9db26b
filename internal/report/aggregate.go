// Package report implements the aggregation engine behind the reporting
// screens: grouping records by time bucket, filtering, totals and per-unit
// averages. Every function is a pure computation over the records passed in;
// records are never mutated.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
)

// NoValue is how an undefined figure (such as the average of zero units) is rendered.
const NoValue = "—"

var ErrUnknownBucket = errors.New("unknown bucket")

// ListBuckets returns the distinct bucket keys in ascending order.
// For "YYYY-MM" keys this is also chronological order.
func ListBuckets(records []core.Record) []string {
	return distinctSorted(records, func(r core.Record) string { return r.Bucket })
}

// ListCategories returns the distinct category keys in ascending order.
func ListCategories(records []core.Record) []string {
	return distinctSorted(records, func(r core.Record) string { return r.Category })
}

func distinctSorted(records []core.Record, key func(core.Record) string) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, r := range records {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GroupByBucket assigns every record to the BucketTotal of its own bucket.
// Records keep their input order inside each group.
func GroupByBucket(records []core.Record) map[string]core.BucketTotal {
	groups := make(map[string]core.BucketTotal)
	for _, r := range records {
		g := groups[r.Bucket]
		g.Bucket = r.Bucket
		g.TotalAmount = g.TotalAmount.Add(r.TotalAmount)
		g.TotalQuantity += r.TotalQuantity
		g.Records = append(g.Records, r)
		groups[r.Bucket] = g
	}
	return groups
}

// Summaries returns the bucket totals ordered like ListBuckets.
func Summaries(records []core.Record) []core.BucketTotal {
	groups := GroupByBucket(records)
	buckets := ListBuckets(records)
	out := make([]core.BucketTotal, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, groups[b])
	}
	return out
}

// Filter returns the records of the selected bucket in their original order.
// "all" (or an empty selection) returns the input unchanged.
func Filter(records []core.Record, selected string) []core.Record {
	if selected == "" || selected == core.FilterAll {
		return records
	}
	out := make([]core.Record, 0)
	for _, r := range records {
		if r.Bucket == selected {
			out = append(out, r)
		}
	}
	return out
}

// Total sums whatever record set it is given.
func Total(records []core.Record) core.GrandTotal {
	var g core.GrandTotal
	for _, r := range records {
		g.TotalAmount = g.TotalAmount.Add(r.TotalAmount)
		g.TotalQuantity += r.TotalQuantity
	}
	g.Count = len(records)
	return g
}

// AveragePerUnit divides an amount by a quantity. The second result is false
// when the quantity is zero or negative and the average is undefined.
func AveragePerUnit(amount decimal.Decimal, quantity int64) (decimal.Decimal, bool) {
	if quantity <= 0 {
		return decimal.Zero, false
	}
	return amount.Div(decimal.NewFromInt(quantity)), true
}

// FormatAverage renders AveragePerUnit, using NoValue when it is undefined.
func FormatAverage(amount decimal.Decimal, quantity int64) string {
	avg, ok := AveragePerUnit(amount, quantity)
	if !ok {
		return NoValue
	}
	return core.FormatAmount(avg)
}

// ValidateBucket checks that selected is "all" or one of the buckets present in records.
func ValidateBucket(records []core.Record, selected string) error {
	if selected == "" || selected == core.FilterAll {
		return nil
	}
	for _, r := range records {
		if r.Bucket == selected {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownBucket, selected)
}
