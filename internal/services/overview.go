package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
	"eaccountant/internal/view"
)

// StockReport is the stock screen: product levels with their chart.
type StockReport struct {
	Phase     view.Phase
	Message   string
	FetchedAt time.Time
	Products  []core.Product
	Summary   core.StockSummary
	Chart     report.ChartData
	Colors    []string
	Warnings  []string
}

// Overview is the dashboard: headline figures of the three reports fetched
// together.
type Overview struct {
	Sales    core.GrandTotal
	Chart    report.ChartData
	Profits  core.ProfitTotals
	Stock    core.StockSummary
	Warnings []string
}

// Stock loads the session's stock screen.
func (s *ReportService) Stock(ctx context.Context, sess *Session) (StockReport, error) {
	st, err := sess.Stock.Initialize(ctx)
	if err != nil && !errors.Is(err, view.ErrFetchInFlight) {
		return StockReport{}, err
	}
	return s.stockReport(st), nil
}

// RefreshStock re-fetches product levels.
func (s *ReportService) RefreshStock(ctx context.Context, sess *Session) (StockReport, error) {
	var (
		st  view.State[core.Batch[core.Product]]
		err error
	)
	if sess.Stock.State().Phase() == view.Failed {
		st, err = sess.Stock.Retry(ctx)
	} else {
		st, err = sess.Stock.Refresh(ctx)
	}
	if err != nil {
		return StockReport{}, err
	}
	return s.stockReport(st), nil
}

func (s *ReportService) stockReport(st view.State[core.Batch[core.Product]]) StockReport {
	out := StockReport{
		Phase:     st.Phase(),
		Message:   st.Message(),
		FetchedAt: st.FetchedAt(),
	}
	batch, ok := st.Data()
	if !ok {
		return out
	}
	out.Products = batch.Items
	out.Summary = report.SummarizeStock(batch.Items, s.config.LowStock)
	out.Chart = report.StockChart(batch.Items)
	out.Colors = report.BarColors(len(batch.Items))
	out.Warnings = batch.Warnings()
	return out
}

// Overview fetches sales, monthly profits and stock concurrently. It bypasses
// session state and fails if any of the three fetches fails.
func (s *ReportService) Overview(ctx context.Context) (Overview, error) {
	var (
		sales    core.Batch[core.Record]
		profits  core.Batch[core.ProfitRow]
		products core.Batch[core.Product]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.reader.MonthlySales(gctx)
		if err != nil {
			return fmt.Errorf("monthly sales: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profits, err = s.reader.Profits(gctx, core.Monthly)
		if err != nil {
			return fmt.Errorf("profits: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		products, err = s.reader.Products(gctx)
		if err != nil {
			return fmt.Errorf("products: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	v, err := report.BuildView(sales.Items, core.AllBuckets())
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		Sales:   v.Grand,
		Chart:   report.Chart(v, s.config.Currency),
		Profits: report.SummarizeProfits(profits.Items),
		Stock:   report.SummarizeStock(products.Items, s.config.LowStock),
	}
	out.Warnings = append(out.Warnings, sales.Warnings()...)
	out.Warnings = append(out.Warnings, profits.Warnings()...)
	out.Warnings = append(out.Warnings, products.Warnings()...)
	return out, nil
}
