package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FilterAll selects every bucket.
const FilterAll = "all"

type (
	// Record is one aggregated fact as delivered by the reporting backend,
	// e.g. the sales of one product in one month.
	Record struct {
		Category      string
		Bucket        string // "YYYY-MM" for monthly reports
		TotalAmount   decimal.Decimal
		TotalQuantity int64
	}

	// FilterState selects the subset of records shown and exported.
	FilterState struct {
		SelectedBucket string
	}

	ProfitRow struct {
		Period   string
		Revenue  decimal.Decimal
		COGS     decimal.Decimal
		Expenses decimal.Decimal
		Profit   decimal.Decimal
	}

	Product struct {
		ID           int64
		Name         string
		Brand        string
		Stock        int64
		BuyingPrice  decimal.Decimal
		SellingPrice decimal.Decimal
	}
)

var (
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyBucket     = errors.New("empty bucket")
	ErrEmptyPeriod     = errors.New("empty period")
	ErrEmptyName       = errors.New("empty product name")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrMissingField    = errors.New("missing field")
)

// AllBuckets returns the identity filter.
func AllBuckets() FilterState {
	return FilterState{SelectedBucket: FilterAll}
}

// IsAll reports whether the filter selects every bucket. The zero value counts as "all".
func (f FilterState) IsAll() bool {
	return f.SelectedBucket == "" || f.SelectedBucket == FilterAll
}

// Key returns the selected bucket, or "all".
func (f FilterState) Key() string {
	if f.IsAll() {
		return FilterAll
	}
	return f.SelectedBucket
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(r.Bucket) == "" {
		return ErrEmptyBucket
	}
	if r.TotalQuantity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, r.TotalQuantity)
	}
	return nil
}

// NetProfit is revenue minus cost of goods sold minus expenses.
func (p ProfitRow) NetProfit() decimal.Decimal {
	return p.Revenue.Sub(p.COGS).Sub(p.Expenses)
}

func (p ProfitRow) Validate() error {
	if strings.TrimSpace(p.Period) == "" {
		return ErrEmptyPeriod
	}
	return nil
}

// Label is the chart label, "Name (Brand)".
func (p Product) Label() string {
	if strings.TrimSpace(p.Brand) == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Brand)
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock %d", ErrInvalidQuantity, p.Stock)
	}
	return nil
}
