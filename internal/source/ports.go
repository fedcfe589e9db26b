package source

import (
	"context"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
)

// Ports for outbound adapters.
type (
	// SalesReader fetches the monthly sales report. Rows that fail
	// validation are returned in Batch.Rejected, never as zero values.
	SalesReader interface {
		MonthlySales(ctx context.Context) (core.Batch[core.Record], error)
	}

	// ProfitReader fetches the profit report for a period granularity.
	ProfitReader interface {
		Profits(ctx context.Context, period core.Period) (core.Batch[core.ProfitRow], error)
	}

	StockReader interface {
		Products(ctx context.Context) (core.Batch[core.Product], error)
	}

	// Publisher writes a rendered report grid to a shared destination and
	// returns a reference to where it landed.
	Publisher interface {
		Publish(ctx context.Context, grid export.Grid) (ref string, err error)
	}
)

// Reader is the full read side of a reporting backend.
type Reader interface {
	SalesReader
	ProfitReader
	StockReader
}
