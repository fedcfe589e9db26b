package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
)

// SeriesPalette colours line series by category index.
var SeriesPalette = []string{
	"#1976d2", "#388e3c", "#f57c00", "#d32f2f", "#7b1fa2",
	"#00796b", "#c2185b", "#5d4037", "#616161", "#455a64",
}

// BarPalette colours stock bars by product index.
var BarPalette = []string{
	"#1976d2", "#388e3c", "#f57c00", "#d32f2f", "#7b1fa2",
	"#00796b", "#c2185b", "#5d4037", "#616161", "#455a64",
	"#0288d1", "#689f38", "#ffa000", "#e64a19", "#512da8",
	"#0097a7", "#ad1457", "#6d4c41", "#757575", "#546e7a",
}

type Series struct {
	Label  string            `json:"label"`
	Color  string            `json:"color"`
	Values []decimal.Decimal `json:"values"`
}

type ChartData struct {
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Chart builds one series per category over the view's bucket options.
// Buckets without a record for a category plot as zero, so a filtered view
// keeps its x axis and only the selected bucket carries values.
func Chart(v View, currency string) ChartData {
	labels := make([]string, len(v.Buckets))
	index := make(map[string]int, len(v.Buckets))
	for i, b := range v.Buckets {
		labels[i] = core.BucketLabel(b)
		index[b] = i
	}

	series := make([]Series, len(v.Categories))
	byCategory := make(map[string]int, len(v.Categories))
	for i, c := range v.Categories {
		values := make([]decimal.Decimal, len(v.Buckets))
		for j := range values {
			values[j] = decimal.Zero
		}
		series[i] = Series{
			Label:  fmt.Sprintf("%s Sales (%s)", c, currency),
			Color:  SeriesPalette[i%len(SeriesPalette)],
			Values: values,
		}
		byCategory[c] = i
	}

	for _, r := range v.Records {
		si, ok := byCategory[r.Category]
		if !ok {
			continue
		}
		bi, ok := index[r.Bucket]
		if !ok {
			continue
		}
		series[si].Values[bi] = series[si].Values[bi].Add(r.TotalAmount)
	}

	title := "Monthly Sales Trend by Product"
	if !v.Filter.IsAll() {
		title = "Product Sales for " + v.FilterLabel()
	}
	return ChartData{Title: title, Labels: labels, Series: series}
}

// StockChart renders stock levels as a single bar series coloured per product.
func StockChart(products []core.Product) ChartData {
	labels := make([]string, len(products))
	values := make([]decimal.Decimal, len(products))
	for i, p := range products {
		labels[i] = p.Label()
		values[i] = decimal.NewFromInt(p.Stock)
	}
	series := []Series{{Label: "Stock Level", Values: values}}
	if len(products) > 0 {
		series[0].Color = BarPalette[0]
	}
	return ChartData{Title: "Current Stock Levels", Labels: labels, Series: series}
}

// BarColors returns the colour of each product bar.
func BarColors(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = BarPalette[i%len(BarPalette)]
	}
	return out
}
