//go:build integration

package sheets

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	"eaccountant/internal/report"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/source/sheets

func integrationClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestIntegration_ReadTabs(t *testing.T) {
	c := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sales, err := c.MonthlySales(ctx)
	if err != nil {
		t.Fatalf("monthly sales: %v", err)
	}
	t.Logf("sales: %d records, %d rejected", sales.Len(), len(sales.Rejected))

	products, err := c.Products(ctx)
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	t.Logf("products: %d", products.Len())
}

func TestIntegration_Publish(t *testing.T) {
	c := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records := []core.Record{
		{Category: "Integration", Bucket: "2024-01", TotalAmount: decimal.RequireFromString("10.50"), TotalQuantity: 3},
	}
	v, err := report.BuildView(records, core.AllBuckets())
	if err != nil {
		t.Fatal(err)
	}
	g, err := export.FromView(v, export.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	g.Sheet = "Integration Test"

	ref, err := c.Publish(ctx, g)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.HasPrefix(ref, "'Integration Test - All Months'!A1:F") {
		t.Errorf("unexpected ref: %s", ref)
	}

	// Publishing again reuses the tab.
	if _, err := c.Publish(ctx, g); err != nil {
		t.Fatalf("republish: %v", err)
	}
}
