// Package export renders report views into downloadable documents.
//
// Every renderer consumes the same Grid, built once from a report.View or a
// profit report, so the spreadsheet, print, PDF and published renditions of
// a report always carry identical figures.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
)

var (
	ErrNoData          = errors.New("no data to export")
	ErrFontUnavailable = errors.New("pdf font unavailable")
)

// Kind identifies the report a grid was built from.
type Kind string

const (
	KindMonthlySales Kind = "monthly_sales"
	KindProfits      Kind = "profits"
)

// CellType tells renderers how to format and store a cell.
type CellType string

const (
	CellText    CellType = "text"
	CellInt     CellType = "int"
	CellAmount  CellType = "amount"
	CellNoValue CellType = "none"
)

// Cell is a typed table cell.
type Cell struct {
	Type   CellType        `json:"type"`
	Text   string          `json:"text,omitempty"`
	Int    int64           `json:"int,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

func Text(s string) Cell            { return Cell{Type: CellText, Text: s} }
func Int(n int64) Cell              { return Cell{Type: CellInt, Int: n} }
func Amount(d decimal.Decimal) Cell { return Cell{Type: CellAmount, Amount: d} }
func NoValue() Cell                 { return Cell{Type: CellNoValue} }

// average is the per-unit average cell, or the no-value sentinel.
func average(amount decimal.Decimal, qty int64) Cell {
	if avg, ok := report.AveragePerUnit(amount, qty); ok {
		return Amount(avg)
	}
	return NoValue()
}

// String is the display form used by the print and PDF renderers.
func (c Cell) String() string {
	switch c.Type {
	case CellInt:
		return core.FormatQuantity(c.Int)
	case CellAmount:
		return core.FormatAmount(c.Amount)
	case CellNoValue:
		return report.NoValue
	default:
		return c.Text
	}
}

// Value is the raw form written to spreadsheets. Amounts keep two decimals
// and no grouping so they land as numbers.
func (c Cell) Value() any {
	switch c.Type {
	case CellInt:
		return c.Int
	case CellAmount:
		return c.Amount.StringFixed(2)
	case CellNoValue:
		return report.NoValue
	default:
		return c.Text
	}
}

// Numeric reports whether the cell should be right-aligned.
func (c Cell) Numeric() bool {
	return c.Type == CellInt || c.Type == CellAmount
}

// Meta carries the values that are not part of the report data.
type Meta struct {
	Currency    string
	GeneratedAt time.Time
}

func (m Meta) withDefaults() Meta {
	if strings.TrimSpace(m.Currency) == "" {
		m.Currency = "UGX"
	}
	if m.GeneratedAt.IsZero() {
		m.GeneratedAt = time.Now()
	}
	return m
}

// Grid is the table model shared by all renderers.
type Grid struct {
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	Sheet        string    `json:"sheet"`
	FilterKey    string    `json:"filter_key"`
	FilterLabel  string    `json:"filter_label"`
	Currency     string    `json:"currency"`
	GeneratedAt  time.Time `json:"generated_at"`
	Headers      []string  `json:"headers"`
	Rows         [][]Cell  `json:"rows"`
	SummaryTitle string    `json:"summary_title,omitempty"`
	Summary      [][]Cell  `json:"summary,omitempty"`
	Total        []Cell    `json:"total"`
	RecordCount  int       `json:"record_count"`
	// GrandAmount is the figure every rendition must show as its total.
	GrandAmount   decimal.Decimal `json:"grand_amount"`
	GrandQuantity int64           `json:"grand_quantity"`
	Footer        string          `json:"footer"`
}

// FromView builds the monthly sales grid for the view's current filter.
func FromView(v report.View, meta Meta) (Grid, error) {
	if v.Empty() {
		return Grid{}, ErrNoData
	}
	meta = meta.withDefaults()

	g := Grid{
		Kind:        KindMonthlySales,
		Title:       "Monthly Sales Report",
		Sheet:       "Monthly Sales",
		FilterKey:   v.Filter.Key(),
		FilterLabel: v.FilterLabel(),
		Currency:    meta.Currency,
		GeneratedAt: meta.GeneratedAt,
		Headers: []string{
			"S/N", "Product", "Month",
			fmt.Sprintf("Total Sales (%s)", meta.Currency),
			"Total Quantity", "Avg Price/Unit",
		},
		SummaryTitle:  "Summary by Month",
		RecordCount:   len(v.Records),
		GrandAmount:   v.Grand.TotalAmount,
		GrandQuantity: v.Grand.TotalQuantity,
		Footer:        v.FooterText(),
	}

	g.Rows = make([][]Cell, 0, len(v.Records))
	for _, row := range v.Rows() {
		r := row.Record
		g.Rows = append(g.Rows, []Cell{
			Int(int64(row.Serial)),
			Text(r.Category),
			Text(row.Label),
			Amount(r.TotalAmount),
			Int(r.TotalQuantity),
			average(r.TotalAmount, r.TotalQuantity),
		})
	}

	g.Summary = make([][]Cell, 0, len(v.Summaries))
	for _, s := range v.Summaries {
		g.Summary = append(g.Summary, []Cell{
			Text(""),
			Text(fmt.Sprintf("%d product(s)", len(s.Records))),
			Text(core.BucketLabel(s.Bucket)),
			Amount(s.TotalAmount),
			Int(s.TotalQuantity),
			average(s.TotalAmount, s.TotalQuantity),
		})
	}

	g.Total = []Cell{
		Text(""),
		Text("Grand Total"),
		Text(v.FilterLabel()),
		Amount(v.Grand.TotalAmount),
		Int(v.Grand.TotalQuantity),
		average(v.Grand.TotalAmount, v.Grand.TotalQuantity),
	}
	return g, nil
}

// FromProfits builds the profit report grid. Rows are ordered by period.
func FromProfits(period core.Period, rows []core.ProfitRow, meta Meta) (Grid, error) {
	if !period.IsValid() {
		return Grid{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	if len(rows) == 0 {
		return Grid{}, ErrNoData
	}
	meta = meta.withDefaults()
	sorted := report.SortProfits(rows)
	totals := report.SummarizeProfits(sorted)

	g := Grid{
		Kind:          KindProfits,
		Title:         "Profit Report",
		Sheet:         "Profits",
		FilterKey:     period.String(),
		FilterLabel:   strings.ToUpper(period.String()[:1]) + period.String()[1:],
		Currency:      meta.Currency,
		GeneratedAt:   meta.GeneratedAt,
		Headers:       []string{"Period", "Revenue", "COGS", "Expenses", "Profit"},
		RecordCount:   len(sorted),
		GrandAmount:   totals.Profit,
		GrandQuantity: int64(len(sorted)),
	}
	g.Rows = make([][]Cell, 0, len(sorted))
	for _, r := range sorted {
		g.Rows = append(g.Rows, []Cell{
			Text(period.Label(r.Period)),
			Amount(r.Revenue),
			Amount(r.COGS),
			Amount(r.Expenses),
			Amount(r.Profit),
		})
	}
	g.Total = []Cell{
		Text("Total"),
		Amount(totals.Revenue),
		Amount(totals.COGS),
		Amount(totals.Expenses),
		Amount(totals.Profit),
	}
	g.Footer = fmt.Sprintf("Gross margin %s, net margin %s",
		report.FormatMargin(totals.GrossMargin, totals.HasMargins),
		report.FormatMargin(totals.NetMargin, totals.HasMargins))
	return g, nil
}

// Empty reports whether the grid has no body rows.
func (g Grid) Empty() bool {
	return len(g.Rows) == 0
}

// SummaryLine is the one-line description printed above the table.
func (g Grid) SummaryLine() string {
	noun := "records"
	if g.RecordCount == 1 {
		noun = "record"
	}
	if g.Kind == KindProfits {
		return fmt.Sprintf("Showing %d %s (%s), net profit %s %s",
			g.RecordCount, noun, g.FilterLabel, g.Currency, core.FormatAmount(g.GrandAmount))
	}
	return fmt.Sprintf("Showing %d %s for %s, total %s %s, %s units",
		g.RecordCount, noun, g.FilterLabel, g.Currency,
		core.FormatAmount(g.GrandAmount), core.FormatQuantity(g.GrandQuantity))
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// Filename is "<kind>_<filter>.<ext>", e.g. monthly_sales_all.xlsx.
func (g Grid) Filename(ext string) string {
	key := unsafeName.ReplaceAllString(strings.ToLower(g.FilterKey), "_")
	key = strings.Trim(key, "_")
	if key == "" {
		key = core.FilterAll
	}
	return fmt.Sprintf("%s_%s.%s", g.Kind, key, strings.TrimPrefix(ext, "."))
}

// Matrix lays the grid out as rows of cells: headers, body, then an optional
// blank row and summary section, then the total row.
func (g Grid) Matrix(includeSummary bool) [][]Cell {
	out := make([][]Cell, 0, len(g.Rows)+len(g.Summary)+4)
	header := make([]Cell, len(g.Headers))
	for i, h := range g.Headers {
		header[i] = Text(h)
	}
	out = append(out, header)
	out = append(out, g.Rows...)
	if includeSummary && len(g.Summary) > 0 {
		out = append(out, nil, []Cell{Text(g.SummaryTitle)})
		out = append(out, g.Summary...)
	}
	return append(out, g.Total)
}

// Values is Matrix in the raw form accepted by spreadsheet APIs.
func (g Grid) Values(includeSummary bool) [][]any {
	m := g.Matrix(includeSummary)
	out := make([][]any, len(m))
	for i, row := range m {
		vals := make([]any, len(row))
		for j, c := range row {
			vals[j] = c.Value()
		}
		out[i] = vals
	}
	return out
}

// EncodePayload is the journal form of a grid.
func EncodePayload(g Grid) ([]byte, error) {
	return json.Marshal(g)
}

// DecodePayload reads a journaled grid back.
func DecodePayload(payload []byte) (Grid, error) {
	if len(payload) == 0 {
		return Grid{}, errors.New("export payload missing")
	}
	var g Grid
	if err := json.Unmarshal(payload, &g); err != nil {
		return Grid{}, fmt.Errorf("decode export payload: %w", err)
	}
	return g, nil
}
