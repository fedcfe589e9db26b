package export

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/signintech/gopdf"
)

const (
	pdfFont       = "report"
	pdfMargin     = 30.0
	pdfRowHeight  = 16.0
	pdfBandHeight = 70.0
	pdfFontSize   = 8.0
)

// PDFOptions controls the PDF rendition.
type PDFOptions struct {
	// FontPath points to a TrueType font. FontData takes precedence when set.
	FontPath       string
	FontData       []byte
	IncludeSummary bool
}

func (o PDFOptions) font() ([]byte, error) {
	if len(o.FontData) > 0 {
		return o.FontData, nil
	}
	if strings.TrimSpace(o.FontPath) == "" {
		return nil, fmt.Errorf("%w: no font configured", ErrFontUnavailable)
	}
	data, err := os.ReadFile(o.FontPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	return data, nil
}

type pdfWriter struct {
	pdf    *gopdf.GoPdf
	grid   Grid
	widths []float64
	y      float64
	page   int
}

// PDF renders the grid as an A4 document with a repeated table header on
// every page.
func PDF(g Grid, opts PDFOptions) ([]byte, string, error) {
	if g.Empty() {
		return nil, "", ErrNoData
	}
	font, err := opts.font()
	if err != nil {
		return nil, "", err
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := pdf.AddTTFFontData(pdfFont, font); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}

	w := &pdfWriter{pdf: pdf, grid: g}
	w.widths = w.columnWidths()
	if err := w.firstPage(); err != nil {
		return nil, "", err
	}

	for _, row := range g.Rows {
		if err := w.row(row, false); err != nil {
			return nil, "", err
		}
	}
	if opts.IncludeSummary && len(g.Summary) > 0 {
		if err := w.sectionTitle(g.SummaryTitle); err != nil {
			return nil, "", err
		}
		for _, row := range g.Summary {
			if err := w.row(row, false); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.row(g.Total, true); err != nil {
		return nil, "", err
	}
	if err := w.text(pdfMargin, w.y+8, g.Footer, 9); err != nil {
		return nil, "", err
	}
	if err := w.pageFooter(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, "", fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), g.Filename("pdf"), nil
}

func (w *pdfWriter) pageWidth() float64  { return gopdf.PageSizeA4.W }
func (w *pdfWriter) pageHeight() float64 { return gopdf.PageSizeA4.H }

func (w *pdfWriter) firstPage() error {
	w.pdf.AddPage()
	w.page = 1

	w.pdf.SetFillColor(25, 118, 210)
	w.pdf.RectFromUpperLeftWithStyle(0, 0, w.pageWidth(), pdfBandHeight, "F")
	w.pdf.SetTextColor(255, 255, 255)
	if err := w.text(pdfMargin, 20, w.grid.Title, 18); err != nil {
		return err
	}
	if err := w.text(pdfMargin, 46, fmt.Sprintf("Generated %s | %s",
		w.grid.GeneratedAt.Format("2006-01-02 15:04"), w.grid.FilterLabel), 10); err != nil {
		return err
	}

	w.pdf.SetTextColor(45, 52, 54)
	if err := w.text(pdfMargin, pdfBandHeight+12, w.grid.SummaryLine(), 10); err != nil {
		return err
	}
	w.y = pdfBandHeight + 34
	return w.header()
}

func (w *pdfWriter) header() error {
	w.pdf.SetFillColor(25, 118, 210)
	w.pdf.RectFromUpperLeftWithStyle(pdfMargin, w.y, w.tableWidth(), pdfRowHeight, "F")
	w.pdf.SetTextColor(255, 255, 255)
	cells := make([]Cell, len(w.grid.Headers))
	for i, h := range w.grid.Headers {
		cells[i] = Text(h)
	}
	if err := w.cells(cells, gopdf.Center|gopdf.Middle); err != nil {
		return err
	}
	w.pdf.SetTextColor(45, 52, 54)
	w.y += pdfRowHeight
	return nil
}

func (w *pdfWriter) sectionTitle(title string) error {
	if err := w.ensureSpace(2 * pdfRowHeight); err != nil {
		return err
	}
	w.y += pdfRowHeight / 2
	if err := w.text(pdfMargin, w.y, title, 10); err != nil {
		return err
	}
	w.y += pdfRowHeight
	return nil
}

func (w *pdfWriter) row(cells []Cell, total bool) error {
	if err := w.ensureSpace(pdfRowHeight); err != nil {
		return err
	}
	if total {
		w.pdf.SetFillColor(227, 242, 253)
		w.pdf.RectFromUpperLeftWithStyle(pdfMargin, w.y, w.tableWidth(), pdfRowHeight, "F")
	}
	if err := w.cells(cells, 0); err != nil {
		return err
	}
	w.pdf.SetStrokeColor(204, 204, 204)
	w.pdf.SetLineWidth(0.5)
	w.pdf.Line(pdfMargin, w.y+pdfRowHeight, pdfMargin+w.tableWidth(), w.y+pdfRowHeight)
	w.y += pdfRowHeight
	return nil
}

// cells writes one table line at the current y. align 0 picks right
// alignment for numbers and left for text.
func (w *pdfWriter) cells(cells []Cell, align int) error {
	if err := w.pdf.SetFont(pdfFont, "", pdfFontSize); err != nil {
		return fmt.Errorf("set font: %w", err)
	}
	x := pdfMargin
	for i, c := range cells {
		if i >= len(w.widths) {
			break
		}
		a := align
		if a == 0 {
			a = gopdf.Left | gopdf.Middle
			if c.Numeric() {
				a = gopdf.Right | gopdf.Middle
			}
		}
		w.pdf.SetX(x + 2)
		w.pdf.SetY(w.y)
		rect := &gopdf.Rect{W: w.widths[i] - 4, H: pdfRowHeight}
		if err := w.pdf.CellWithOption(rect, w.fit(c.String(), rect.W), gopdf.CellOption{Align: a}); err != nil {
			return fmt.Errorf("write cell: %w", err)
		}
		x += w.widths[i]
	}
	return nil
}

func (w *pdfWriter) ensureSpace(h float64) error {
	if w.y+h <= w.pageHeight()-pdfMargin-pdfRowHeight {
		return nil
	}
	if err := w.pageFooter(); err != nil {
		return err
	}
	w.pdf.AddPage()
	w.page++
	w.y = pdfMargin
	return w.header()
}

func (w *pdfWriter) pageFooter() error {
	w.pdf.SetTextColor(99, 110, 114)
	err := w.text(w.pageWidth()-pdfMargin-60, w.pageHeight()-pdfMargin, fmt.Sprintf("Page %d", w.page), 8)
	w.pdf.SetTextColor(45, 52, 54)
	return err
}

func (w *pdfWriter) text(x, y float64, s string, size float64) error {
	if err := w.pdf.SetFont(pdfFont, "", size); err != nil {
		return fmt.Errorf("set font: %w", err)
	}
	w.pdf.SetX(x)
	w.pdf.SetY(y)
	if err := w.pdf.Cell(nil, s); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return nil
}

func (w *pdfWriter) tableWidth() float64 {
	return w.pageWidth() - 2*pdfMargin
}

// columnWidths shares the table width proportionally to the longest value
// of each column.
func (w *pdfWriter) columnWidths() []float64 {
	raw := columnWidths(w.grid)
	var sum float64
	for _, v := range raw {
		sum += v
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = w.tableWidth() * v / sum
	}
	return out
}

// fit truncates s with an ellipsis until it fits in width.
func (w *pdfWriter) fit(s string, width float64) string {
	tw, err := w.pdf.MeasureTextWidth(s)
	if err != nil || tw <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 1 {
		r = r[:len(r)-1]
		if tw, err = w.pdf.MeasureTextWidth(string(r) + "..."); err == nil && tw <= width {
			return string(r) + "..."
		}
	}
	return string(r)
}
