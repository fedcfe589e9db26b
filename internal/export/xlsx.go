package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	colorPrimary = "#1976D2"
	colorMuted   = "#636E72"
	colorTotal   = "#E3F2FD"

	numFmtAmount = 4 // #,##0.00
	numFmtInt    = 3 // #,##0
)

// SpreadsheetOptions controls the optional sections of the workbook.
type SpreadsheetOptions struct {
	// IncludeSummary adds a blank row and the per-bucket summary section
	// between the body and the grand total.
	IncludeSummary bool
}

type xlsxStyles struct {
	title, subtitle, header       int
	text, amount, integer         int
	summaryTitle                  int
	totalText, totalAmt, totalInt int
}

// Spreadsheet renders the grid as an xlsx workbook with a single sheet.
func Spreadsheet(g Grid, opts SpreadsheetOptions) ([]byte, string, error) {
	if g.Empty() {
		return nil, "", ErrNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := g.Sheet
	if sheet == "" {
		sheet = "Report"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	st, err := newXLSXStyles(f)
	if err != nil {
		return nil, "", fmt.Errorf("create styles: %w", err)
	}

	cols := len(g.Headers)
	lastCol, _ := excelize.ColumnNumberToName(cols)

	// Title and subtitle
	f.MergeCell(sheet, "A1", lastCol+"1")
	f.SetCellValue(sheet, "A1", g.Title)
	f.SetCellStyle(sheet, "A1", lastCol+"1", st.title)
	f.SetRowHeight(sheet, 1, 28)

	f.MergeCell(sheet, "A2", lastCol+"2")
	f.SetCellValue(sheet, "A2", fmt.Sprintf("%s | Generated %s", g.FilterLabel, g.GeneratedAt.Format("2006-01-02 15:04")))
	f.SetCellStyle(sheet, "A2", lastCol+"2", st.subtitle)

	row := 3
	for i, h := range g.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, h)
	}
	f.SetCellStyle(sheet, "A3", fmt.Sprintf("%s%d", lastCol, row), st.header)
	f.SetRowHeight(sheet, row, 22)
	row++

	for _, cells := range g.Rows {
		if err := writeRow(f, sheet, row, cells, st.text, st.amount, st.integer); err != nil {
			return nil, "", err
		}
		row++
	}

	if opts.IncludeSummary && len(g.Summary) > 0 {
		row++ // blank separator
		f.MergeCell(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row))
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), g.SummaryTitle)
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), st.summaryTitle)
		row++
		for _, cells := range g.Summary {
			if err := writeRow(f, sheet, row, cells, st.text, st.amount, st.integer); err != nil {
				return nil, "", err
			}
			row++
		}
	}

	if err := writeRow(f, sheet, row, g.Total, st.totalText, st.totalAmt, st.totalInt); err != nil {
		return nil, "", err
	}

	widths := columnWidths(g)
	for i, w := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, name, name, w)
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), g.Filename("xlsx"), nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []Cell, text, amount, integer int) error {
	for i, c := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		style := text
		switch c.Type {
		case CellAmount:
			// rounded as a decimal so the cell matches String
			err = f.SetCellFloat(sheet, cell, c.Amount.Round(2).InexactFloat64(), 2, 64)
			style = amount
		case CellInt:
			err = f.SetCellInt(sheet, cell, int(c.Int))
			style = integer
		default:
			err = f.SetCellStr(sheet, cell, c.String())
		}
		if err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style %s: %w", cell, err)
		}
	}
	return nil
}

func newXLSXStyles(f *excelize.File) (xlsxStyles, error) {
	var st xlsxStyles
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 16, Color: "#FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{colorPrimary}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&st.subtitle, &excelize.Style{
			Font:      &excelize.Font{Size: 10, Italic: true, Color: colorMuted},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{colorPrimary}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&st.text, &excelize.Style{
			Alignment: &excelize.Alignment{Vertical: "center"},
		}},
		{&st.amount, &excelize.Style{
			NumFmt:    numFmtAmount,
			Alignment: &excelize.Alignment{Horizontal: "right"},
		}},
		{&st.integer, &excelize.Style{
			NumFmt:    numFmtInt,
			Alignment: &excelize.Alignment{Horizontal: "right"},
		}},
		{&st.summaryTitle, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 12},
			Alignment: &excelize.Alignment{Horizontal: "left"},
		}},
		{&st.totalText, &excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Color: []string{colorTotal}, Pattern: 1},
		}},
		{&st.totalAmt, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{colorTotal}, Pattern: 1},
			NumFmt:    numFmtAmount,
			Alignment: &excelize.Alignment{Horizontal: "right"},
		}},
		{&st.totalInt, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{colorTotal}, Pattern: 1},
			NumFmt:    numFmtInt,
			Alignment: &excelize.Alignment{Horizontal: "right"},
		}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return st, err
		}
		*d.dst = id
	}
	return st, nil
}

// columnWidths sizes each column to its longest display value.
func columnWidths(g Grid) []float64 {
	widths := make([]float64, len(g.Headers))
	fit := func(i int, s string) {
		if i >= len(widths) {
			return
		}
		if w := float64(len([]rune(s))) + 2; w > widths[i] {
			widths[i] = w
		}
	}
	for i, h := range g.Headers {
		fit(i, h)
	}
	for _, rows := range [][][]Cell{g.Rows, g.Summary, {g.Total}} {
		for _, r := range rows {
			for i, c := range r {
				fit(i, c.String())
			}
		}
	}
	for i := range widths {
		if widths[i] < 8 {
			widths[i] = 8
		}
		if widths[i] > 50 {
			widths[i] = 50
		}
	}
	return widths
}
