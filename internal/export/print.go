package export

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	appweb "eaccountant/web"
)

// PrintOptions controls the print document.
type PrintOptions struct {
	// Nonce is set on the inline style and script tags so the document
	// passes a strict Content-Security-Policy.
	Nonce string
	// IncludeSummary adds the per-bucket summary section before the total.
	IncludeSummary bool
}

var (
	printOnce sync.Once
	printTmpl *template.Template
	printErr  error
)

func printTemplate() (*template.Template, error) {
	printOnce.Do(func() {
		printTmpl, printErr = template.ParseFS(appweb.TemplatesFS, "templates/print.html")
	})
	return printTmpl, printErr
}

type printCell struct {
	Text    string
	Numeric bool
}

type printData struct {
	Title        string
	FilterLabel  string
	GeneratedAt  string
	SummaryLine  string
	Headers      []string
	Rows         [][]printCell
	SummaryTitle string
	Summary      [][]printCell
	Total        []printCell
	Columns      int
	Footer       string
	Nonce        string
}

// PrintDocument renders the grid as a standalone HTML page that opens the
// browser print dialog when loaded. The output only depends on the grid and
// the options.
func PrintDocument(g Grid, opts PrintOptions) ([]byte, string, error) {
	if g.Empty() {
		return nil, "", ErrNoData
	}
	t, err := printTemplate()
	if err != nil {
		return nil, "", fmt.Errorf("parse print template: %w", err)
	}

	data := printData{
		Title:       g.Title,
		FilterLabel: g.FilterLabel,
		GeneratedAt: g.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
		SummaryLine: g.SummaryLine(),
		Headers:     g.Headers,
		Rows:        printRows(g.Rows),
		Total:       printRow(g.Total),
		Columns:     len(g.Headers),
		Footer:      g.Footer,
		Nonce:       opts.Nonce,
	}
	if opts.IncludeSummary && len(g.Summary) > 0 {
		data.SummaryTitle = g.SummaryTitle
		data.Summary = printRows(g.Summary)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "print", data); err != nil {
		return nil, "", fmt.Errorf("render print document: %w", err)
	}
	return buf.Bytes(), g.Filename("html"), nil
}

func printRows(rows [][]Cell) [][]printCell {
	out := make([][]printCell, len(rows))
	for i, r := range rows {
		out[i] = printRow(r)
	}
	return out
}

func printRow(cells []Cell) []printCell {
	out := make([]printCell, len(cells))
	for i, c := range cells {
		out[i] = printCell{Text: c.String(), Numeric: c.Numeric()}
	}
	return out
}
