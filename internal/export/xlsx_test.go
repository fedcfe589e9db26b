package export

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"eaccountant/internal/core"
)

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestSpreadsheet(t *testing.T) {
	g := sampleGrid(t, core.FilterAll)

	tests := []struct {
		name     string
		summary  bool
		wantRows int
	}{
		// title + subtitle + header + 3 body + total
		{"without summary", false, 7},
		// plus blank + summary title + 2 summary rows
		{"with summary", true, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, name, err := Spreadsheet(g, SpreadsheetOptions{IncludeSummary: tt.summary})
			if err != nil {
				t.Fatalf("spreadsheet: %v", err)
			}
			if name != "monthly_sales_all.xlsx" {
				t.Errorf("filename: %s", name)
			}
			rows := readSheet(t, data, "Monthly Sales")
			if len(rows) != tt.wantRows {
				t.Fatalf("expected %d rows, got %d: %v", tt.wantRows, len(rows), rows)
			}
			if rows[2][0] != "S/N" || rows[2][3] != "Total Sales (UGX)" {
				t.Errorf("header row: %v", rows[2])
			}
			if rows[3][0] != "1" || rows[3][1] != "Sugar" {
				t.Errorf("first body row: %v", rows[3])
			}
			last := rows[len(rows)-1]
			if last[1] != "Grand Total" {
				t.Fatalf("last row should be the grand total: %v", last)
			}
			total, err := decimal.NewFromString(last[3])
			if err != nil {
				t.Fatalf("total cell %q is not numeric: %v", last[3], err)
			}
			if !total.Equal(g.GrandAmount) {
				t.Errorf("xlsx total %s != grid total %s", total, g.GrandAmount)
			}
			if tt.summary && rows[7][0] != "Summary by Month" {
				t.Errorf("summary title row: %v", rows[7])
			}
		})
	}
}

func TestSpreadsheetProfits(t *testing.T) {
	d := decimal.RequireFromString
	g, err := FromProfits(core.Yearly, []core.ProfitRow{
		{Period: "2024", Revenue: d("0"), COGS: d("10"), Expenses: d("5"), Profit: d("-15")},
	}, Meta{GeneratedAt: fixedTime})
	if err != nil {
		t.Fatal(err)
	}
	data, name, err := Spreadsheet(g, SpreadsheetOptions{IncludeSummary: true})
	if err != nil {
		t.Fatal(err)
	}
	if name != "profits_yearly.xlsx" {
		t.Errorf("filename: %s", name)
	}
	rows := readSheet(t, data, "Profits")
	last := rows[len(rows)-1]
	if last[0] != "Total" || last[4] != "-15.00" {
		t.Errorf("total row: %v", last)
	}
}

func TestSpreadsheetEmpty(t *testing.T) {
	data, name, err := Spreadsheet(Grid{}, SpreadsheetOptions{})
	if !errors.Is(err, ErrNoData) || data != nil || name != "" {
		t.Fatalf("expected ErrNoData and no file, got %v %d %q", err, len(data), name)
	}
}
