package report

import (
	"fmt"

	"eaccountant/internal/core"
)

// View is the aggregated state of the monthly report for one filter. Screens,
// exports and publishing all read from a View so the figures never drift.
type View struct {
	Filter     core.FilterState
	Records    []core.Record      // filtered, original order
	Summaries  []core.BucketTotal // per bucket of Records
	Grand      core.GrandTotal    // over Records
	Buckets    []string           // filter options over the full set
	Categories []string           // over the full set
	Total      int                // size of the full set
}

// BuildView derives the view for filter over records. An unknown bucket returns ErrUnknownBucket.
func BuildView(records []core.Record, filter core.FilterState) (View, error) {
	if err := ValidateBucket(records, filter.SelectedBucket); err != nil {
		return View{}, err
	}
	filtered := Filter(records, filter.SelectedBucket)
	return View{
		Filter:     core.FilterState{SelectedBucket: filter.Key()},
		Records:    filtered,
		Summaries:  Summaries(filtered),
		Grand:      Total(filtered),
		Buckets:    ListBuckets(records),
		Categories: ListCategories(records),
		Total:      len(records),
	}, nil
}

// Empty reports whether the filtered set has no records.
func (v View) Empty() bool {
	return len(v.Records) == 0
}

// FilterLabel describes the active filter, e.g. "All Months" or "January 2024".
func (v View) FilterLabel() string {
	return core.BucketLabel(v.Filter.Key())
}

// Row is one table line with its serial number and display values.
type Row struct {
	Serial   int
	Record   core.Record
	Label    string // bucket label
	Average  string
	Amount   string
	Quantity string
}

// Rows numbers the filtered records from 1 in display order.
func (v View) Rows() []Row {
	rows := make([]Row, len(v.Records))
	for i, r := range v.Records {
		rows[i] = Row{
			Serial:   i + 1,
			Record:   r,
			Label:    core.BucketLabel(r.Bucket),
			Average:  FormatAverage(r.TotalAmount, r.TotalQuantity),
			Amount:   core.FormatAmount(r.TotalAmount),
			Quantity: core.FormatQuantity(r.TotalQuantity),
		}
	}
	return rows
}

// FooterText is the summary line shown under the table.
func (v View) FooterText() string {
	if v.Empty() {
		return "No sales data found"
	}
	noun := "records"
	if len(v.Records) == 1 {
		noun = "record"
	}
	if v.Filter.IsAll() {
		return fmt.Sprintf("Showing %d %s for all months", len(v.Records), noun)
	}
	return fmt.Sprintf("Showing %d %s for %s", len(v.Records), noun, v.FilterLabel())
}
