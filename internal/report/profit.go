package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
)

var hundred = decimal.NewFromInt(100)

// SortProfits orders rows by period key. ISO keys sort chronologically.
func SortProfits(rows []core.ProfitRow) []core.ProfitRow {
	out := append([]core.ProfitRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// SummarizeProfits sums the report columns. Margins are only computed when
// total revenue is positive.
func SummarizeProfits(rows []core.ProfitRow) core.ProfitTotals {
	var t core.ProfitTotals
	for _, r := range rows {
		t.Revenue = t.Revenue.Add(r.Revenue)
		t.COGS = t.COGS.Add(r.COGS)
		t.Expenses = t.Expenses.Add(r.Expenses)
		t.Profit = t.Profit.Add(r.Profit)
	}
	t.Periods = len(rows)
	t.GrossProfit = t.Revenue.Sub(t.COGS)
	if t.Revenue.IsPositive() {
		t.HasMargins = true
		t.GrossMargin = t.GrossProfit.Div(t.Revenue).Mul(hundred).Round(2)
		t.NetMargin = t.Profit.Div(t.Revenue).Mul(hundred).Round(2)
	}
	return t
}

// FormatMargin renders a margin percentage or NoValue.
func FormatMargin(m decimal.Decimal, ok bool) string {
	if !ok {
		return NoValue
	}
	return m.StringFixed(2) + "%"
}
