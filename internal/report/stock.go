package report

import (
	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
)

// SummarizeStock totals units and stock value. Products at or below
// lowStock units count as low stock.
func SummarizeStock(products []core.Product, lowStock int64) core.StockSummary {
	var s core.StockSummary
	for _, p := range products {
		units := decimal.NewFromInt(p.Stock)
		s.Units += p.Stock
		s.CostValue = s.CostValue.Add(p.BuyingPrice.Mul(units))
		s.RetailValue = s.RetailValue.Add(p.SellingPrice.Mul(units))
		if p.Stock <= lowStock {
			s.LowStock++
		}
	}
	s.Products = len(products)
	return s
}
