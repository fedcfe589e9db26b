package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
	"eaccountant/internal/services"
	"eaccountant/internal/storage"
	"eaccountant/internal/view"
)

type productJSON struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Brand        string          `json:"brand,omitempty"`
	Label        string          `json:"label"`
	Stock        int64           `json:"stock"`
	BuyingPrice  decimal.Decimal `json:"buying_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Color        string          `json:"color"`
}

type stockSummaryJSON struct {
	Products    int             `json:"products"`
	Units       int64           `json:"units"`
	CostValue   decimal.Decimal `json:"cost_value"`
	RetailValue decimal.Decimal `json:"retail_value"`
	LowStock    int             `json:"low_stock"`
}

type stockResponse struct {
	Phase     string           `json:"phase"`
	Message   string           `json:"message,omitempty"`
	FetchedAt *time.Time       `json:"fetched_at,omitempty"`
	Products  []productJSON    `json:"products"`
	Summary   stockSummaryJSON `json:"summary"`
	Chart     report.ChartData `json:"chart"`
	Warnings  []string         `json:"warnings,omitempty"`
}

type dashboardResponse struct {
	Sales    grandJSON        `json:"sales"`
	Chart    report.ChartData `json:"chart"`
	Profits  profitTotalsJSON `json:"profits"`
	Stock    stockSummaryJSON `json:"stock"`
	Warnings []string         `json:"warnings,omitempty"`
}

type exportJSON struct {
	ID            int64           `json:"id"`
	Report        string          `json:"report"`
	Format        string          `json:"format"`
	Filter        string          `json:"filter"`
	RecordCount   int             `json:"record_count"`
	GrandAmount   decimal.Decimal `json:"grand_amount"`
	GrandQuantity int64           `json:"grand_quantity"`
	Filename      string          `json:"filename,omitempty"`
	Status        string          `json:"status"`
	Attempts      int64           `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	PublishedRef  string          `json:"published_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newStockSummaryJSON(sum core.StockSummary) stockSummaryJSON {
	return stockSummaryJSON{
		Products:    sum.Products,
		Units:       sum.Units,
		CostValue:   sum.CostValue,
		RetailValue: sum.RetailValue,
		LowStock:    sum.LowStock,
	}
}

func newStockResponse(st services.StockReport) stockResponse {
	resp := stockResponse{
		Phase:     st.Phase.String(),
		Message:   st.Message,
		FetchedAt: timePtr(st.FetchedAt),
		Products:  []productJSON{},
		Summary:   newStockSummaryJSON(st.Summary),
		Chart:     st.Chart,
		Warnings:  st.Warnings,
	}
	for i, p := range st.Products {
		item := productJSON{
			ID:           p.ID,
			Name:         p.Name,
			Brand:        p.Brand,
			Label:        p.Label(),
			Stock:        p.Stock,
			BuyingPrice:  p.BuyingPrice,
			SellingPrice: p.SellingPrice,
		}
		if i < len(st.Colors) {
			item.Color = st.Colors[i]
		}
		resp.Products = append(resp.Products, item)
	}
	return resp
}

// handleStock returns the stock screen of the caller's session.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, err := s.svc.Stock(ctx, sess)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeStock(w, st)
}

func (s *Server) handleStockRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, err := s.svc.RefreshStock(ctx, sess)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeStock(w, st)
}

func (s *Server) writeStock(w http.ResponseWriter, st services.StockReport) {
	if st.Phase == view.Failed {
		s.countFailure()
		ErrorResponse(http.StatusBadGateway, services.ErrUnavailable.Error(), st.Message).Write(w)
		return
	}
	NewResponse().JSON(newStockResponse(st)).Write(w)
}

// handleDashboard returns the headline figures of all three reports.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ov, err := s.svc.Overview(ctx)
	if err != nil {
		if errorStatus(err) == http.StatusBadGateway {
			s.countFailure()
		}
		s.logger.WarnContext(ctx, "Dashboard unavailable", "error", err)
		DomainError(err).Write(w)
		return
	}

	NewResponse().JSON(dashboardResponse{
		Sales:    newGrandJSON(ov.Sales),
		Chart:    ov.Chart,
		Profits:  newProfitTotalsJSON(ov.Profits),
		Stock:    newStockSummaryJSON(ov.Stock),
		Warnings: ov.Warnings,
	}).Write(w)
}

// handleExports lists the newest journal entries, downloads and publishes
// alike.
func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	limit := parseLimit(r, "limit", 20, 100)
	records, err := s.svc.RecentExports(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list exports", "error", err)
		InternalServerError("failed to list exports").Write(w)
		return
	}

	out := make([]exportJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, newExportJSON(rec))
	}
	NewResponse().JSON(map[string]any{"exports": out}).Write(w)
}

func newExportJSON(rec storage.ExportRecord) exportJSON {
	return exportJSON{
		ID:            rec.ID,
		Report:        rec.Report,
		Format:        rec.Format,
		Filter:        rec.Filter,
		RecordCount:   rec.RecordCount,
		GrandAmount:   rec.GrandAmount,
		GrandQuantity: rec.GrandQuantity,
		Filename:      rec.Filename,
		Status:        string(rec.Status),
		Attempts:      rec.Attempts,
		LastError:     rec.LastError,
		PublishedRef:  rec.PublishedRef,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
