package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	"eaccountant/internal/source"
)

const (
	defaultSalesSheet    = "Monthly Sales"
	defaultProfitsSheet  = "Profits"
	defaultProductsSheet = "Products"

	defaultTabCacheTTL = 5 * time.Minute
	maxSheetTitle      = 100
)

var errNoService = errors.New("sheets service not initialized")

// Config names the spreadsheet and the tabs the client reads from.
type Config struct {
	SpreadsheetID string
	SalesSheet    string
	ProfitsSheet  string
	ProductsSheet string
	Fields        source.FieldMap
}

func (c Config) withDefaults() Config {
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	if strings.TrimSpace(c.SalesSheet) == "" {
		c.SalesSheet = defaultSalesSheet
	}
	if strings.TrimSpace(c.ProfitsSheet) == "" {
		c.ProfitsSheet = defaultProfitsSheet
	}
	if strings.TrimSpace(c.ProductsSheet) == "" {
		c.ProductsSheet = defaultProductsSheet
	}
	c.Fields = c.Fields.WithDefaults()
	return c
}

// Client reads report tabs from a Google spreadsheet and publishes export
// grids to it.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	salesSheet    string
	profitsSheet  string
	productsSheet string
	fields        source.FieldMap

	// Tab titles cached to avoid a metadata call on every publish.
	mu                sync.Mutex
	tabs              map[string]int64
	tabsExpiresAt     time.Time
	tabsValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ source.SalesReader  = (*Client)(nil)
	_ source.ProfitReader = (*Client)(nil)
	_ source.StockReader  = (*Client)(nil)
	_ source.Publisher    = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional tab names: GOOGLE_SALES_SHEET (default "Monthly Sales"),
// GOOGLE_PROFITS_SHEET (default "Profits"), GOOGLE_PRODUCTS_SHEET (default "Products").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Config{
		SpreadsheetID: os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SalesSheet:    os.Getenv("GOOGLE_SALES_SHEET"),
		ProfitsSheet:  os.Getenv("GOOGLE_PROFITS_SHEET"),
		ProductsSheet: os.Getenv("GOOGLE_PRODUCTS_SHEET"),
	})
}

// New creates a Sheets client authenticated with service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		svc:               svc,
		spreadsheetID:     cfg.SpreadsheetID,
		salesSheet:        cfg.SalesSheet,
		profitsSheet:      cfg.ProfitsSheet,
		productsSheet:     cfg.ProductsSheet,
		fields:            cfg.Fields,
		tabsValidDuration: defaultTabCacheTTL,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// MonthlySales reads the sales tab. Columns are matched by header name.
func (c *Client) MonthlySales(ctx context.Context) (core.Batch[core.Record], error) {
	values, err := c.readTab(ctx, c.salesSheet)
	if err != nil {
		return core.Batch[core.Record]{}, err
	}
	return parseSales(values, c.fields)
}

// Profits reads the profits tab of the given period, e.g. "Profits (monthly)".
func (c *Client) Profits(ctx context.Context, period core.Period) (core.Batch[core.ProfitRow], error) {
	if !period.IsValid() {
		return core.Batch[core.ProfitRow]{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	values, err := c.readTab(ctx, profitsSheetName(c.profitsSheet, period))
	if err != nil {
		return core.Batch[core.ProfitRow]{}, err
	}
	return parseProfits(values)
}

func (c *Client) Products(ctx context.Context) (core.Batch[core.Product], error) {
	values, err := c.readTab(ctx, c.productsSheet)
	if err != nil {
		return core.Batch[core.Product]{}, err
	}
	return parseProducts(values)
}

func (c *Client) readTab(ctx context.Context, sheet string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errNoService
	}
	rng := quoteSheet(sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// Publish writes the grid to its own tab, replacing previous contents, and
// returns the A1 range written.
func (c *Client) Publish(ctx context.Context, grid export.Grid) (string, error) {
	if grid.Empty() {
		return "", export.ErrNoData
	}
	if c.svc == nil {
		return "", errNoService
	}
	title := publishSheetName(grid)
	if err := c.ensureTab(ctx, title); err != nil {
		return "", err
	}

	tab := quoteSheet(title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tab, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	values := grid.Values(true)
	ref := fmt.Sprintf("%s!A1:%s%d", tab, columnName(len(grid.Headers)), len(values))
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Published report grid",
		"sheet", title,
		"rows", len(values),
		"grand_amount", grid.GrandAmount.StringFixed(2))
	return ref, nil
}

// ensureTab creates the tab when the spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, title string) error {
	tabs, err := c.tabTitles(ctx)
	if err != nil {
		return err
	}
	if _, ok := tabs[title]; ok {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	c.InvalidateTabCache()
	return nil
}

func (c *Client) tabTitles(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	if c.tabs != nil && time.Now().Before(c.tabsExpiresAt) {
		tabs := c.tabs
		c.mu.Unlock()
		return tabs, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	tabs := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			tabs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}

	c.mu.Lock()
	c.tabs = tabs
	c.tabsExpiresAt = time.Now().Add(c.tabsValidDuration)
	c.mu.Unlock()
	return tabs, nil
}

// InvalidateTabCache forces the next publish to reload the tab list.
func (c *Client) InvalidateTabCache() {
	c.mu.Lock()
	c.tabs = nil
	c.tabsExpiresAt = time.Time{}
	c.mu.Unlock()
}

// quoteSheet renders a tab title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func profitsSheetName(base string, period core.Period) string {
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(base), period)
}

// publishSheetName is "<sheet> - <filter label>", capped to the Sheets title limit.
func publishSheetName(g export.Grid) string {
	title := strings.TrimSpace(g.Sheet)
	if title == "" {
		title = "Report"
	}
	if g.FilterLabel != "" {
		title += " - " + g.FilterLabel
	}
	if r := []rune(title); len(r) > maxSheetTitle {
		title = string(r[:maxSheetTitle])
	}
	return title
}

// columnName converts a 1-based column index to letters (1 -> A, 27 -> AA).
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
