package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	applog "eaccountant/internal/log"
	"eaccountant/internal/report"
	"eaccountant/internal/source/memory"
	"eaccountant/internal/storage"
	"eaccountant/internal/view"
)

var d = decimal.RequireFromString

func sampleSales() []core.Record {
	return []core.Record{
		{Category: "Sugar", Bucket: "2024-01", TotalAmount: d("150000"), TotalQuantity: 30},
		{Category: "Salt", Bucket: "2024-01", TotalAmount: d("2500.50"), TotalQuantity: 5},
		{Category: "Sugar", Bucket: "2024-02", TotalAmount: d("90000"), TotalQuantity: 18},
	}
}

func sampleProfits() map[core.Period][]core.ProfitRow {
	return map[core.Period][]core.ProfitRow{
		core.Monthly: {
			{Period: "2024-01", Revenue: d("1000"), COGS: d("600"), Expenses: d("100"), Profit: d("300")},
			{Period: "2024-02", Revenue: d("2000"), COGS: d("1200"), Expenses: d("300"), Profit: d("500")},
		},
		core.Yearly: {
			{Period: "2024", Revenue: d("3000"), COGS: d("1800"), Expenses: d("400"), Profit: d("800")},
		},
	}
}

func sampleProducts() []core.Product {
	return []core.Product{
		{ID: 1, Name: "Sugar", Brand: "Kakira", Stock: 40, BuyingPrice: d("4000"), SellingPrice: d("5000")},
		{ID: 2, Name: "Salt", Stock: 3, BuyingPrice: d("500"), SellingPrice: d("700")},
	}
}

func newTestService(t *testing.T, store *memory.Store) (*ReportService, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cfg := DefaultReportServiceConfig()
	cfg.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return NewReportService(store, repo, nil, cfg), repo
}

func TestSession(t *testing.T) {
	svc, _ := newTestService(t, memory.New(nil, nil, nil))

	sess, existed := svc.Session("")
	if existed {
		t.Fatal("new session reported as existing")
	}
	if _, err := uuid.Parse(sess.ID); err != nil {
		t.Fatalf("session id %q is not a uuid: %v", sess.ID, err)
	}

	again, existed := svc.Session(sess.ID)
	if !existed || again != sess {
		t.Fatal("expected the same session for a known id")
	}

	other, existed := svc.Session("not-a-uuid")
	if existed || other.ID == "not-a-uuid" {
		t.Fatalf("malformed id should get a fresh session, got %q", other.ID)
	}
}

func TestSales_FilterAndRefresh(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	snap, err := svc.Sales(ctx, sess, "")
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if snap.Phase != view.Ready {
		t.Fatalf("Phase = %v, want ready", snap.Phase)
	}
	if !snap.View.Grand.TotalAmount.Equal(d("242500.50")) {
		t.Errorf("grand total = %s", snap.View.Grand.TotalAmount)
	}

	snap, err = svc.Sales(ctx, sess, "2024-02")
	if err != nil {
		t.Fatalf("Sales with bucket: %v", err)
	}
	if snap.Filter.SelectedBucket != "2024-02" || !snap.View.Grand.TotalAmount.Equal(d("90000")) {
		t.Errorf("filtered view = %s %s", snap.Filter.SelectedBucket, snap.View.Grand.TotalAmount)
	}

	if _, err := svc.Sales(ctx, sess, "2030-01"); !errors.Is(err, report.ErrUnknownBucket) {
		t.Errorf("unknown bucket err = %v", err)
	}

	// the session fetched once; a second Sales call reuses the loaded data
	if n := store.Fetches(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	snap, err = svc.RefreshSales(ctx, sess)
	if err != nil {
		t.Fatalf("RefreshSales: %v", err)
	}
	if store.Fetches() != 2 {
		t.Errorf("fetches after refresh = %d, want 2", store.Fetches())
	}
	if snap.Filter.SelectedBucket != "2024-02" {
		t.Errorf("filter lost on refresh: %q", snap.Filter.SelectedBucket)
	}
}

func TestSales_FailureAndRetry(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	store.FailWith(errors.New("backend down"))
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	snap, err := svc.Sales(ctx, sess, "2024-01")
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if snap.Phase != view.Failed || snap.Message == "" {
		t.Fatalf("snapshot = %+v, want failed with message", snap)
	}

	if _, err := svc.ExportSales(ctx, sess, FormatXLSX, ExportOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("export while failed err = %v, want ErrUnavailable", err)
	}

	store.FailWith(nil)
	snap, err = svc.RefreshSales(ctx, sess)
	if err != nil {
		t.Fatalf("RefreshSales: %v", err)
	}
	if snap.Phase != view.Ready {
		t.Fatalf("Phase after retry = %v", snap.Phase)
	}
}

func TestExportSales_JournalsEntry(t *testing.T) {
	svc, repo := newTestService(t, memory.New(sampleSales(), nil, nil))
	ctx := context.Background()
	sess, _ := svc.Session("")

	doc, err := svc.ExportSales(ctx, sess, FormatXLSX, ExportOptions{IncludeSummary: true})
	if err != nil {
		t.Fatalf("ExportSales: %v", err)
	}
	if doc.Filename != "monthly_sales_all.xlsx" {
		t.Errorf("Filename = %q", doc.Filename)
	}
	if !bytes.HasPrefix(doc.Body, []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}
	if doc.ID == 0 {
		t.Fatal("export was not journaled")
	}

	rec, err := repo.GetExport(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if rec.Status != storage.StatusStored || rec.Format != "xlsx" || rec.Report != "monthly_sales" {
		t.Errorf("journal entry = %+v", rec)
	}
	if !rec.GrandAmount.Equal(doc.Grid.GrandAmount) {
		t.Errorf("journal total %s != export total %s", rec.GrandAmount, doc.Grid.GrandAmount)
	}
}

func TestExport_SameTotalsAcrossFormats(t *testing.T) {
	svc, _ := newTestService(t, memory.New(sampleSales(), nil, nil))
	ctx := context.Background()
	sess, _ := svc.Session("")
	if _, err := svc.Sales(ctx, sess, "2024-01"); err != nil {
		t.Fatalf("Sales: %v", err)
	}

	xlsx, err := svc.ExportSales(ctx, sess, FormatXLSX, ExportOptions{})
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	html, err := svc.ExportSales(ctx, sess, FormatPrint, ExportOptions{Nonce: "abc"})
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !xlsx.Grid.GrandAmount.Equal(html.Grid.GrandAmount) || !xlsx.Grid.GrandAmount.Equal(d("152500.50")) {
		t.Errorf("totals differ: %s vs %s", xlsx.Grid.GrandAmount, html.Grid.GrandAmount)
	}
	if !bytes.Contains(html.Body, []byte("152,500.50")) {
		t.Error("print document does not show the filtered total")
	}
	if html.ContentType != "text/html; charset=utf-8" {
		t.Errorf("ContentType = %q", html.ContentType)
	}
}

func TestExport_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty report", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New(nil, nil, nil))
		sess, _ := svc.Session("")
		if _, err := svc.ExportSales(ctx, sess, FormatXLSX, ExportOptions{}); !errors.Is(err, export.ErrNoData) {
			t.Errorf("err = %v, want ErrNoData", err)
		}
	})

	t.Run("pdf without font", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New(sampleSales(), nil, nil))
		sess, _ := svc.Session("")
		if _, err := svc.ExportSales(ctx, sess, FormatPDF, ExportOptions{}); !errors.Is(err, export.ErrFontUnavailable) {
			t.Errorf("err = %v, want ErrFontUnavailable", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		svc, _ := newTestService(t, memory.New(sampleSales(), nil, nil))
		sess, _ := svc.Session("")
		if _, err := svc.ExportSales(ctx, sess, Format("docx"), ExportOptions{}); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}

func TestProfits_SelectPeriod(t *testing.T) {
	svc, _ := newTestService(t, memory.New(nil, sampleProfits(), nil))
	ctx := context.Background()
	sess, _ := svc.Session("")

	snap, err := svc.Profits(ctx, sess, "")
	if err != nil {
		t.Fatalf("Profits: %v", err)
	}
	if snap.Period != core.Monthly || len(snap.Rows) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Totals.Profit.Equal(d("800")) {
		t.Errorf("Profit total = %s", snap.Totals.Profit)
	}

	snap, err = svc.Profits(ctx, sess, core.Yearly)
	if err != nil {
		t.Fatalf("Profits yearly: %v", err)
	}
	if snap.Period != core.Yearly || len(snap.Rows) != 1 {
		t.Errorf("yearly snapshot = %+v", snap)
	}

	if _, err := svc.Profits(ctx, sess, core.Period("hourly")); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("invalid period err = %v", err)
	}

	doc, err := svc.ExportProfits(ctx, sess, core.Yearly, FormatXLSX, ExportOptions{})
	if err != nil {
		t.Fatalf("ExportProfits: %v", err)
	}
	if doc.Grid.Kind != export.KindProfits || !doc.Grid.GrandAmount.Equal(d("800")) {
		t.Errorf("profit grid = %s %s", doc.Grid.Kind, doc.Grid.GrandAmount)
	}
}

func TestPublish_JournalsPending(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	svc, repo := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	id, err := svc.Publish(ctx, sess, export.KindMonthlySales, "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	rec, err := repo.GetExport(ctx, id)
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if rec.Status != storage.StatusPending || rec.Format != string(FormatSheets) {
		t.Fatalf("journal entry = %+v", rec)
	}

	if _, err := svc.Publish(ctx, sess, export.Kind("stock"), ""); err == nil {
		t.Error("expected error for unknown report")
	}

	// The polling processor completes what the broker would have delivered.
	proc := NewPublishProcessor(repo, store, DefaultPublishProcessorConfig())
	if n := proc.ProcessBatch(ctx); n != 1 {
		t.Fatalf("ProcessBatch attempted %d, want 1", n)
	}
	rec, _ = repo.GetExport(ctx, id)
	if rec.Status != storage.StatusPublished || rec.PublishedRef != "mem:1" {
		t.Errorf("after processing = %+v", rec)
	}
	if got := store.Published(); len(got) != 1 || !got[0].GrandAmount.Equal(d("242500.50")) {
		t.Errorf("published grids = %+v", got)
	}
}

func TestStockAndOverview(t *testing.T) {
	store := memory.New(sampleSales(), sampleProfits(), sampleProducts())
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	stock, err := svc.Stock(ctx, sess)
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if stock.Phase != view.Ready || stock.Summary.Products != 2 || stock.Summary.LowStock != 1 {
		t.Errorf("stock = %+v", stock.Summary)
	}
	if len(stock.Colors) != 2 {
		t.Errorf("colors = %v", stock.Colors)
	}

	ov, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !ov.Sales.TotalAmount.Equal(d("242500.50")) || ov.Sales.TotalQuantity != 53 {
		t.Errorf("sales totals = %+v", ov.Sales)
	}
	if !ov.Profits.Profit.Equal(d("800")) {
		t.Errorf("profit totals = %+v", ov.Profits)
	}
	if ov.Stock.Units != 43 {
		t.Errorf("stock units = %d", ov.Stock.Units)
	}

	store.FailWith(errors.New("backend down"))
	if _, err := svc.Overview(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Overview err = %v, want ErrUnavailable", err)
	}
}

func TestRecentExportsAndReady(t *testing.T) {
	svc, _ := newTestService(t, memory.New(sampleSales(), nil, nil))
	ctx := context.Background()
	sess, _ := svc.Session("")

	if err := svc.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if _, err := svc.ExportSales(ctx, sess, FormatXLSX, ExportOptions{}); err != nil {
		t.Fatalf("ExportSales: %v", err)
	}
	list, err := svc.RecentExports(ctx, 10)
	if err != nil {
		t.Fatalf("RecentExports: %v", err)
	}
	if len(list) != 1 || list[0].Filename != "monthly_sales_all.xlsx" {
		t.Errorf("recent = %+v", list)
	}
}

func TestSales_LogsFetchOutcome(t *testing.T) {
	var buf bytes.Buffer
	store := memory.New(sampleSales(), nil, nil)
	store.FailWith(errors.New("backend down"))

	cfg := DefaultReportServiceConfig()
	cfg.Logger = applog.New(applog.Config{
		Component: applog.ComponentApp,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	svc := NewReportService(store, nil, nil, cfg)
	ctx := context.Background()
	sess, _ := svc.Session("")

	if _, err := svc.Sales(ctx, sess, ""); err != nil {
		t.Fatalf("Sales: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Report fetch failed", "backend down", "session_id=" + sess.ID, "component=source", "operation=fetch"} {
		if !strings.Contains(out, want) {
			t.Errorf("log lacks %q: %s", want, out)
		}
	}

	buf.Reset()
	store.FailWith(nil)
	if _, err := svc.RefreshSales(ctx, sess); err != nil {
		t.Fatalf("RefreshSales: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Report fetched") || !strings.Contains(out, "record_count=3") {
		t.Errorf("log after retry: %s", out)
	}
}
