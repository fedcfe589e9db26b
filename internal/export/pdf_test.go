package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"eaccountant/internal/core"
)

// systemFont returns a TrueType font available on the test machine.
func systemFont(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("PDF_FONT_PATH"); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/TTF/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		"/Library/Fonts/Arial.ttf",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("no TrueType font available")
	return ""
}

func TestPDF(t *testing.T) {
	font := systemFont(t)
	g := sampleGrid(t, core.FilterAll)
	data, name, err := PDF(g, PDFOptions{FontPath: font, IncludeSummary: true})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if name != "monthly_sales_all.pdf" {
		t.Errorf("filename: %s", name)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestPDFPaginates(t *testing.T) {
	font := systemFont(t)
	var records []core.Record
	for i := 0; i < 120; i++ {
		records = append(records, rec("Product", "2024-01", "10.00", 1))
	}
	v := sampleView(t, core.FilterAll)
	v.Records = records
	g, err := FromView(v, Meta{GeneratedAt: fixedTime})
	if err != nil {
		t.Fatal(err)
	}
	single, _, err := PDF(sampleGrid(t, core.FilterAll), PDFOptions{FontPath: font})
	if err != nil {
		t.Fatal(err)
	}
	data, _, err := PDF(g, PDFOptions{FontPath: font})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if len(data) <= len(single) {
		t.Fatalf("multi-page document should be larger than a single page one")
	}
}

func TestPDFFontUnavailable(t *testing.T) {
	g := sampleGrid(t, core.FilterAll)
	for _, opts := range []PDFOptions{
		{},
		{FontPath: filepath.Join(t.TempDir(), "missing.ttf")},
	} {
		if _, _, err := PDF(g, opts); !errors.Is(err, ErrFontUnavailable) {
			t.Errorf("%+v: expected ErrFontUnavailable, got %v", opts, err)
		}
	}
}

func TestPDFEmpty(t *testing.T) {
	if _, _, err := PDF(Grid{}, PDFOptions{}); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
