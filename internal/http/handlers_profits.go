package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
	"eaccountant/internal/services"
	"eaccountant/internal/view"
)

type profitRowJSON struct {
	Period   string          `json:"period"`
	Label    string          `json:"label"`
	Revenue  decimal.Decimal `json:"revenue"`
	COGS     decimal.Decimal `json:"cogs"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
}

type profitTotalsJSON struct {
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	Expenses    decimal.Decimal `json:"expenses"`
	Profit      decimal.Decimal `json:"profit"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	GrossMargin string          `json:"gross_margin"`
	NetMargin   string          `json:"net_margin"`
	Periods     int             `json:"periods"`
}

type profitResponse struct {
	SessionID string           `json:"session_id"`
	Phase     string           `json:"phase"`
	Message   string           `json:"message,omitempty"`
	FetchedAt *time.Time       `json:"fetched_at,omitempty"`
	Period    string           `json:"period"`
	Periods   []string         `json:"periods"`
	Rows      []profitRowJSON  `json:"rows"`
	Totals    profitTotalsJSON `json:"totals"`
	Warnings  []string         `json:"warnings,omitempty"`
}

func newProfitTotalsJSON(t core.ProfitTotals) profitTotalsJSON {
	return profitTotalsJSON{
		Revenue:     t.Revenue,
		COGS:        t.COGS,
		Expenses:    t.Expenses,
		Profit:      t.Profit,
		GrossProfit: t.GrossProfit,
		GrossMargin: report.FormatMargin(t.GrossMargin, t.HasMargins),
		NetMargin:   report.FormatMargin(t.NetMargin, t.HasMargins),
		Periods:     t.Periods,
	}
}

func newProfitResponse(sess *services.Session, snap view.ProfitSnapshot) profitResponse {
	resp := profitResponse{
		SessionID: sess.ID,
		Phase:     snap.Phase.String(),
		Message:   snap.Message,
		FetchedAt: timePtr(snap.FetchedAt),
		Period:    snap.Period.String(),
		Rows:      []profitRowJSON{},
		Totals:    newProfitTotalsJSON(snap.Totals),
		Warnings:  snap.Warnings,
	}
	for _, p := range core.Periods() {
		resp.Periods = append(resp.Periods, p.String())
	}
	for _, row := range snap.Rows {
		resp.Rows = append(resp.Rows, profitRowJSON{
			Period:   row.Period,
			Label:    snap.Period.Label(row.Period),
			Revenue:  row.Revenue,
			COGS:     row.COGS,
			Expenses: row.Expenses,
			Profit:   row.Profit,
		})
	}
	return resp
}

// handleProfits returns the profit report for the period parameter, or the
// session's current period when it is absent.
func (s *Server) handleProfits(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := s.svc.Profits(ctx, sess, period)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeProfits(w, sess, snap)
}

func (s *Server) handleProfitsRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := s.svc.RefreshProfits(ctx, sess)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeProfits(w, sess, snap)
}

func (s *Server) writeProfits(w http.ResponseWriter, sess *services.Session, snap view.ProfitSnapshot) {
	if snap.Phase == view.Failed {
		s.countFailure()
		ErrorResponse(http.StatusBadGateway, services.ErrUnavailable.Error(), snap.Message).Write(w)
		return
	}
	NewResponse().JSON(newProfitResponse(sess, snap)).Write(w)
}

func (s *Server) handleProfitsExport(format services.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		period, err := parsePeriod(r)
		if err != nil {
			DomainError(err).Write(w)
			return
		}
		sess := s.session(w, r)
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		doc, err := s.svc.ExportProfits(ctx, sess, period, format, s.exportOptions(r))
		if err != nil {
			s.writeExportError(w, r, format, err)
			return
		}
		s.writeDocument(w, r, format, doc)
	}
}
