package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	applog "eaccountant/internal/log"
	"eaccountant/internal/middleware/security"
	"eaccountant/internal/report"
	"eaccountant/internal/services"
	"eaccountant/internal/view"
)

type optionJSON struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type salesRowJSON struct {
	Serial        int             `json:"serial"`
	Category      string          `json:"category"`
	Bucket        string          `json:"bucket"`
	BucketLabel   string          `json:"bucket_label"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalQuantity int64           `json:"total_quantity"`
	Average       string          `json:"average"`
	Amount        string          `json:"amount_display"`
	Quantity      string          `json:"quantity_display"`
}

type bucketSummaryJSON struct {
	Bucket        string          `json:"bucket"`
	Label         string          `json:"label"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalQuantity int64           `json:"total_quantity"`
	Records       int             `json:"records"`
	Average       string          `json:"average"`
}

type grandJSON struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalQuantity int64           `json:"total_quantity"`
	Count         int             `json:"count"`
	Average       string          `json:"average"`
	Amount        string          `json:"amount_display"`
}

type salesResponse struct {
	SessionID    string              `json:"session_id"`
	Phase        string              `json:"phase"`
	Message      string              `json:"message,omitempty"`
	FetchedAt    *time.Time          `json:"fetched_at,omitempty"`
	Filter       optionJSON          `json:"filter"`
	Buckets      []optionJSON        `json:"buckets"`
	Rows         []salesRowJSON      `json:"rows"`
	Summaries    []bucketSummaryJSON `json:"summaries"`
	Grand        grandJSON           `json:"grand"`
	TotalRecords int                 `json:"total_records"`
	Footer       string              `json:"footer,omitempty"`
	Chart        *report.ChartData   `json:"chart,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
}

func newGrandJSON(g core.GrandTotal) grandJSON {
	return grandJSON{
		TotalAmount:   g.TotalAmount,
		TotalQuantity: g.TotalQuantity,
		Count:         g.Count,
		Average:       report.FormatAverage(g.TotalAmount, g.TotalQuantity),
		Amount:        core.FormatAmount(g.TotalAmount),
	}
}

func newSalesResponse(sess *services.Session, snap view.SalesSnapshot, currency string) salesResponse {
	resp := salesResponse{
		SessionID: sess.ID,
		Phase:     snap.Phase.String(),
		Message:   snap.Message,
		FetchedAt: timePtr(snap.FetchedAt),
		Filter:    optionJSON{Key: snap.Filter.Key(), Label: core.BucketLabel(snap.Filter.Key())},
		Buckets:   []optionJSON{{Key: core.FilterAll, Label: core.BucketLabel(core.FilterAll)}},
		Rows:      []salesRowJSON{},
		Summaries: []bucketSummaryJSON{},
		Warnings:  snap.Warnings,
	}
	if snap.Phase != view.Ready {
		return resp
	}

	v := snap.View
	for _, b := range v.Buckets {
		resp.Buckets = append(resp.Buckets, optionJSON{Key: b, Label: core.BucketLabel(b)})
	}
	for _, row := range v.Rows() {
		resp.Rows = append(resp.Rows, salesRowJSON{
			Serial:        row.Serial,
			Category:      row.Record.Category,
			Bucket:        row.Record.Bucket,
			BucketLabel:   row.Label,
			TotalAmount:   row.Record.TotalAmount,
			TotalQuantity: row.Record.TotalQuantity,
			Average:       row.Average,
			Amount:        row.Amount,
			Quantity:      row.Quantity,
		})
	}
	for _, sum := range v.Summaries {
		resp.Summaries = append(resp.Summaries, bucketSummaryJSON{
			Bucket:        sum.Bucket,
			Label:         core.BucketLabel(sum.Bucket),
			TotalAmount:   sum.TotalAmount,
			TotalQuantity: sum.TotalQuantity,
			Records:       len(sum.Records),
			Average:       report.FormatAverage(sum.TotalAmount, sum.TotalQuantity),
		})
	}
	resp.Grand = newGrandJSON(v.Grand)
	resp.TotalRecords = v.Total
	resp.Footer = v.FooterText()
	chart := report.Chart(v, currency)
	resp.Chart = &chart
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// handleSales returns the sales screen of the caller's session, loading it
// on first use. The bucket parameter changes the filter.
func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := s.svc.Sales(ctx, sess, sanitizeInput(r.URL.Query().Get("bucket")))
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeSales(w, sess, snap)
}

// handleSalesRefresh re-fetches the report, or retries after a failure.
func (s *Server) handleSalesRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := s.svc.RefreshSales(ctx, sess)
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	s.writeSales(w, sess, snap)
}

func (s *Server) writeSales(w http.ResponseWriter, sess *services.Session, snap view.SalesSnapshot) {
	if snap.Phase == view.Failed {
		s.countFailure()
		ErrorResponse(http.StatusBadGateway, services.ErrUnavailable.Error(), snap.Message).Write(w)
		return
	}
	NewResponse().JSON(newSalesResponse(sess, snap, s.svc.Currency())).Write(w)
}

// handleSalesExport renders the current sales view in format. The print
// document is served inline, the others as downloads.
func (s *Server) handleSalesExport(format services.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		sess := s.session(w, r)
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		doc, err := s.svc.ExportSales(ctx, sess, format, s.exportOptions(r))
		if err != nil {
			s.writeExportError(w, r, format, err)
			return
		}
		s.writeDocument(w, r, format, doc)
	}
}

func (s *Server) exportOptions(r *http.Request) services.ExportOptions {
	return services.ExportOptions{
		IncludeSummary: parseBool(r, "summary"),
		Nonce:          security.Nonce(r.Context()),
	}
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, format services.Format, doc services.Document) {
	atomic.AddInt64(&s.appMetrics.exports, 1)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogExportCreated(r.Context(),
		doc.ID, string(doc.Grid.Kind), string(format), doc.Grid.FilterKey,
		doc.Grid.RecordCount, core.FormatAmount(doc.Grid.GrandAmount))

	if format == services.FormatPrint {
		NewResponse().Body(doc.ContentType, doc.Body).Write(w)
		return
	}
	NewResponse().Attachment(doc.Filename, doc.ContentType, doc.Body).Write(w)
}

func (s *Server) writeExportError(w http.ResponseWriter, r *http.Request, format services.Format, err error) {
	status := errorStatus(err)
	if status == http.StatusBadGateway {
		s.countFailure()
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Export failed", err, applog.ComponentExport, "render",
			applog.NewFields().WithExport("", string(format), "", 0, ""))
	}
	DomainError(err).Write(w)
}

type publishTarget int

const (
	publishSales publishTarget = iota
	publishProfits
)

type publishResponse struct {
	ID     int64  `json:"id"`
	Report string `json:"report"`
	Status string `json:"status"`
}

// handlePublish journals the current view of a report for the publish
// worker and answers 202 with the journal id.
func (s *Server) handlePublish(target publishTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		sess := s.session(w, r)
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		kind := export.KindMonthlySales
		var period core.Period
		if target == publishProfits {
			kind = export.KindProfits
			p, err := parsePeriod(r)
			if err != nil {
				DomainError(err).Write(w)
				return
			}
			period = p
		}

		id, err := s.svc.Publish(ctx, sess, kind, period)
		if err != nil {
			if errorStatus(err) == http.StatusInternalServerError {
				s.logger.ErrorContext(ctx, "Publish failed", "report", kind, "error", err)
			}
			DomainError(err).Write(w)
			return
		}

		atomic.AddInt64(&s.appMetrics.publishes, 1)
		s.logger.InfoContext(ctx, "Publish accepted",
			applog.FieldExportID, id,
			applog.FieldReport, kind,
			applog.FieldSessionID, sess.ID)
		NewResponse().
			Status(http.StatusAccepted).
			Header("Location", "/api/exports").
			JSON(publishResponse{ID: id, Report: string(kind), Status: "pending"}).
			Write(w)
	}
}
