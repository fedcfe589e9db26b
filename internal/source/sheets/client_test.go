package sheets

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNewSheetsService_UnreadableFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := newSheetsService(context.Background())
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDefaultSheetNames(t *testing.T) {
	c := newClient(nil, Config{SpreadsheetID: " id "})
	if c.spreadsheetID != "id" {
		t.Errorf("spreadsheet id should be trimmed: %q", c.spreadsheetID)
	}
	if c.salesSheet != "Monthly Sales" || c.profitsSheet != "Profits" || c.productsSheet != "Products" {
		t.Errorf("defaults: %q %q %q", c.salesSheet, c.profitsSheet, c.productsSheet)
	}
	if c.fields.Amount != "total_sales" {
		t.Errorf("field defaults: %+v", c.fields)
	}

	c = newClient(nil, Config{SpreadsheetID: "id", SalesSheet: "Vendite"})
	if c.salesSheet != "Vendite" {
		t.Errorf("custom sales sheet: %q", c.salesSheet)
	}
}

func TestSheetNaming(t *testing.T) {
	if got := profitsSheetName("Profits", core.Weekly); got != "Profits (weekly)" {
		t.Errorf("profits sheet: %q", got)
	}
	if got := quoteSheet("Bob's Sales"); got != "'Bob''s Sales'" {
		t.Errorf("quoted: %q", got)
	}

	g := export.Grid{Sheet: "Monthly Sales", FilterLabel: "January 2024"}
	if got := publishSheetName(g); got != "Monthly Sales - January 2024" {
		t.Errorf("publish sheet: %q", got)
	}
	long := export.Grid{Sheet: strings.Repeat("x", 150)}
	if got := publishSheetName(long); len(got) != maxSheetTitle {
		t.Errorf("title should be capped, got %d chars", len(got))
	}
}

func TestColumnName(t *testing.T) {
	tests := map[int]string{0: "A", 1: "A", 6: "F", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range tests {
		if got := columnName(n); got != want {
			t.Errorf("columnName(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestClientWithoutService(t *testing.T) {
	c := newClient(nil, Config{SpreadsheetID: "test"})
	ctx := context.Background()

	if _, err := c.MonthlySales(ctx); !errors.Is(err, errNoService) {
		t.Errorf("MonthlySales: %v", err)
	}
	if _, err := c.Products(ctx); !errors.Is(err, errNoService) {
		t.Errorf("Products: %v", err)
	}
	if _, err := c.Profits(ctx, core.Period("hourly")); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("Profits with bad period: %v", err)
	}

	grid := export.Grid{
		Headers: []string{"Period"},
		Rows:    [][]export.Cell{{export.Text("2024")}},
		Total:   []export.Cell{export.Amount(decimal.Zero)},
	}
	if _, err := c.Publish(ctx, grid); !errors.Is(err, errNoService) {
		t.Errorf("Publish: %v", err)
	}
	if _, err := c.Publish(ctx, export.Grid{}); !errors.Is(err, export.ErrNoData) {
		t.Errorf("Publish empty grid: %v", err)
	}
}

func TestTabCacheExpiration(t *testing.T) {
	c := &Client{tabsValidDuration: 100 * time.Millisecond}

	c.mu.Lock()
	valid := c.tabs != nil && time.Now().Before(c.tabsExpiresAt)
	c.mu.Unlock()
	if valid {
		t.Error("cache should start expired")
	}

	c.mu.Lock()
	c.tabs = map[string]int64{"Monthly Sales - All Months": 7}
	c.tabsExpiresAt = time.Now().Add(c.tabsValidDuration)
	c.mu.Unlock()

	// A valid cache is served without touching the (nil) service.
	tabs, err := c.tabTitles(context.Background())
	if err != nil {
		t.Fatalf("cached tab titles: %v", err)
	}
	if tabs["Monthly Sales - All Months"] != 7 {
		t.Errorf("unexpected cached tabs: %v", tabs)
	}

	time.Sleep(150 * time.Millisecond)

	c.mu.Lock()
	valid = time.Now().Before(c.tabsExpiresAt)
	c.mu.Unlock()
	if valid {
		t.Error("cache should be expired after TTL")
	}
}

func TestInvalidateTabCache(t *testing.T) {
	c := &Client{tabsValidDuration: 10 * time.Minute}
	c.mu.Lock()
	c.tabs = map[string]int64{"Profits - Monthly": 1}
	c.tabsExpiresAt = time.Now().Add(c.tabsValidDuration)
	c.mu.Unlock()

	c.InvalidateTabCache()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabs != nil || time.Now().Before(c.tabsExpiresAt) {
		t.Error("cache should be empty and expired after invalidation")
	}
}
