package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eaccountant/internal/amqp"
	"eaccountant/internal/cache"
	"eaccountant/internal/core"
	"eaccountant/internal/export"
	applog "eaccountant/internal/log"
	"eaccountant/internal/source"
	"eaccountant/internal/storage"
	"eaccountant/internal/view"
)

// ErrUnavailable wraps the message of a failed fetch when an operation needs
// loaded data.
var ErrUnavailable = errors.New("report data unavailable")

// Format is an export rendition.
type Format string

const (
	FormatXLSX   Format = "xlsx"
	FormatPDF    Format = "pdf"
	FormatPrint  Format = "html"
	FormatSheets Format = "sheets"
)

// ContentType is the MIME type of a downloadable format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatPrint:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ReportServiceConfig holds the knobs of the report service.
type ReportServiceConfig struct {
	Currency         string
	PDFFontPath      string
	SessionTTL       time.Duration
	SessionCacheSize int
	// LowStock is the unit count at or below which a product is flagged.
	LowStock int64
	Now      func() time.Time
	// Logger receives fetch outcomes. Defaults to the slog default handler.
	Logger *applog.Logger
}

// DefaultReportServiceConfig returns sensible defaults
func DefaultReportServiceConfig() ReportServiceConfig {
	return ReportServiceConfig{
		Currency:         "UGX",
		SessionTTL:       30 * time.Minute,
		SessionCacheSize: 500,
		LowStock:         10,
		Now:              time.Now,
	}
}

// Session holds the screens of one viewer. Each session fetches and filters
// independently of the others.
type Session struct {
	ID      string
	Sales   *view.SalesScreen
	Profits *view.ProfitScreen
	Stock   *view.Machine[core.Batch[core.Product]]
}

// ExportOptions are the per-request rendering options.
type ExportOptions struct {
	IncludeSummary bool
	Nonce          string
}

// Document is a rendered export.
type Document struct {
	ID          int64
	Filename    string
	ContentType string
	Body        []byte
	Grid        export.Grid
}

// ReportService orchestrates report screens, exports and the publish
// journal.
type ReportService struct {
	reader     source.Reader
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	sessions   *cache.LRUCache[*Session]
	config     ReportServiceConfig
	fetchLog   *applog.StructuredLogger
}

func NewReportService(reader source.Reader, storage *storage.SQLiteRepository, amqpClient *amqp.Client, config ReportServiceConfig) *ReportService {
	def := DefaultReportServiceConfig()
	if config.Currency == "" {
		config.Currency = def.Currency
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = def.SessionTTL
	}
	if config.SessionCacheSize <= 0 {
		config.SessionCacheSize = def.SessionCacheSize
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if config.Logger == nil {
		config.Logger = applog.New(applog.Config{
			Component: applog.ComponentSource,
			Handler:   slog.Default().Handler(),
		})
	}
	return &ReportService{
		reader:     reader,
		storage:    storage,
		amqpClient: amqpClient,
		sessions:   cache.NewSlidingLRUCache[*Session](config.SessionCacheSize, config.SessionTTL),
		config:     config,
		fetchLog:   applog.NewStructuredLogger(config.Logger),
	}
}

// Currency is the currency code printed on charts and exports.
func (s *ReportService) Currency() string {
	return s.config.Currency
}

// Sessions exposes the session cache for periodic cleanup.
func (s *ReportService) Sessions() cache.Cleaner {
	return s.sessions
}

// Session returns the session for id, creating one with a fresh id when id
// is empty, malformed or expired. The boolean reports whether it existed.
func (s *ReportService) Session(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return s.sessions.GetOrCreate(id, func() *Session {
		return &Session{
			ID:      id,
			Sales:   view.NewSalesScreen(s.reader),
			Profits: view.NewProfitScreen(s.reader, core.Monthly),
			Stock:   view.NewMachine(s.reader.Products),
		}
	})
}

// Sales loads the session's sales screen on first use and applies bucket
// when it is set.
func (s *ReportService) Sales(ctx context.Context, sess *Session, bucket string) (view.SalesSnapshot, error) {
	snap, err := sess.Sales.Initialize(ctx)
	if err != nil && !errors.Is(err, view.ErrFetchInFlight) {
		return snap, err
	}
	s.logFetch(ctx, sess, "monthly_sales", snap.Phase, snap.Message, len(snap.View.Records), len(snap.Warnings))
	if bucket == "" || snap.Phase != view.Ready {
		return snap, nil
	}
	return sess.Sales.SelectBucket(bucket)
}

// RefreshSales re-fetches the sales report, retrying when the last fetch
// failed.
func (s *ReportService) RefreshSales(ctx context.Context, sess *Session) (view.SalesSnapshot, error) {
	current, _ := sess.Sales.Snapshot()
	var (
		snap view.SalesSnapshot
		err  error
	)
	if current.Phase == view.Failed {
		snap, err = sess.Sales.Retry(ctx)
	} else {
		snap, err = sess.Sales.Refresh(ctx)
	}
	if err == nil {
		s.logFetch(ctx, sess, "monthly_sales", snap.Phase, snap.Message, len(snap.View.Records), len(snap.Warnings))
	}
	return snap, err
}

// Profits loads the session's profit screen for period.
func (s *ReportService) Profits(ctx context.Context, sess *Session, period core.Period) (view.ProfitSnapshot, error) {
	if period == "" {
		period = sess.Profits.Period()
	}
	if !period.IsValid() {
		return sess.Profits.Snapshot(), fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	var (
		snap view.ProfitSnapshot
		err  error
	)
	if period == sess.Profits.Period() {
		snap, err = sess.Profits.Initialize(ctx)
	} else {
		snap, err = sess.Profits.SelectPeriod(ctx, period)
	}
	if err != nil && !errors.Is(err, view.ErrFetchInFlight) {
		return snap, err
	}
	s.logFetch(ctx, sess, "profits", snap.Phase, snap.Message, len(snap.Rows), len(snap.Warnings))
	return snap, nil
}

// RefreshProfits re-fetches the current profit period.
func (s *ReportService) RefreshProfits(ctx context.Context, sess *Session) (view.ProfitSnapshot, error) {
	if sess.Profits.Snapshot().Phase == view.Failed {
		return sess.Profits.Retry(ctx)
	}
	return sess.Profits.Refresh(ctx)
}

// ExportSales renders the session's current sales view and journals it.
func (s *ReportService) ExportSales(ctx context.Context, sess *Session, format Format, opts ExportOptions) (Document, error) {
	grid, err := s.salesGrid(ctx, sess)
	if err != nil {
		return Document{}, err
	}
	return s.renderAndRecord(ctx, grid, format, opts)
}

// ExportProfits renders the profit report for period and journals it.
func (s *ReportService) ExportProfits(ctx context.Context, sess *Session, period core.Period, format Format, opts ExportOptions) (Document, error) {
	grid, err := s.profitGrid(ctx, sess, period)
	if err != nil {
		return Document{}, err
	}
	return s.renderAndRecord(ctx, grid, format, opts)
}

// Publish journals the session's current view of kind as pending and asks
// the publish worker to write it to the shared spreadsheet. It returns the
// journal id. An unavailable broker is logged; the polling processor picks
// the entry up instead.
func (s *ReportService) Publish(ctx context.Context, sess *Session, kind export.Kind, period core.Period) (int64, error) {
	if s.storage == nil {
		return 0, errors.New("export journal not configured")
	}
	var (
		grid export.Grid
		err  error
	)
	switch kind {
	case export.KindMonthlySales:
		grid, err = s.salesGrid(ctx, sess)
	case export.KindProfits:
		grid, err = s.profitGrid(ctx, sess, period)
	default:
		return 0, fmt.Errorf("unknown report %q", kind)
	}
	if err != nil {
		return 0, err
	}

	id, err := s.record(ctx, grid, FormatSheets, "", storage.StatusPending)
	if err != nil {
		return 0, err
	}

	if err := s.publishExportMessage(ctx, id, string(kind)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"id", id, "error", err)
		// Don't fail the request - the processor polls pending entries
	}
	return id, nil
}

// RecentExports lists the newest journal entries.
func (s *ReportService) RecentExports(ctx context.Context, limit int) ([]storage.ExportRecord, error) {
	if s.storage == nil {
		return nil, nil
	}
	return s.storage.ListRecent(ctx, limit)
}

// JournalStats counts journal entries per status. It is zero without a
// journal.
func (s *ReportService) JournalStats(ctx context.Context) (storage.QueueStats, error) {
	if s.storage == nil {
		return storage.QueueStats{}, nil
	}
	return s.storage.Stats(ctx)
}

// Ready reports whether the journal is reachable.
func (s *ReportService) Ready(ctx context.Context) error {
	if s.reader == nil {
		return errors.New("report source not configured")
	}
	if s.storage == nil {
		return nil
	}
	return s.storage.Ping(ctx)
}

func (s *ReportService) salesGrid(ctx context.Context, sess *Session) (export.Grid, error) {
	snap, err := s.Sales(ctx, sess, "")
	if err != nil {
		return export.Grid{}, err
	}
	if err := phaseError(snap.Phase, snap.Message); err != nil {
		return export.Grid{}, err
	}
	return export.FromView(snap.View, s.meta())
}

func (s *ReportService) profitGrid(ctx context.Context, sess *Session, period core.Period) (export.Grid, error) {
	snap, err := s.Profits(ctx, sess, period)
	if err != nil {
		return export.Grid{}, err
	}
	if err := phaseError(snap.Phase, snap.Message); err != nil {
		return export.Grid{}, err
	}
	return export.FromProfits(snap.Period, snap.Rows, s.meta())
}

func phaseError(phase view.Phase, message string) error {
	switch phase {
	case view.Ready:
		return nil
	case view.Failed:
		return fmt.Errorf("%w: %s", ErrUnavailable, message)
	default:
		return view.ErrNotReady
	}
}

func (s *ReportService) meta() export.Meta {
	return export.Meta{Currency: s.config.Currency, GeneratedAt: s.config.Now()}
}

func (s *ReportService) renderAndRecord(ctx context.Context, grid export.Grid, format Format, opts ExportOptions) (Document, error) {
	var (
		body     []byte
		filename string
		err      error
	)
	switch format {
	case FormatXLSX:
		body, filename, err = export.Spreadsheet(grid, export.SpreadsheetOptions{IncludeSummary: opts.IncludeSummary})
	case FormatPDF:
		body, filename, err = export.PDF(grid, export.PDFOptions{FontPath: s.config.PDFFontPath, IncludeSummary: opts.IncludeSummary})
	case FormatPrint:
		body, filename, err = export.PrintDocument(grid, export.PrintOptions{Nonce: opts.Nonce, IncludeSummary: opts.IncludeSummary})
	default:
		return Document{}, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Filename:    filename,
		ContentType: format.ContentType(),
		Body:        body,
		Grid:        grid,
	}
	if s.storage != nil {
		id, err := s.record(ctx, grid, format, filename, storage.StatusStored)
		if err != nil {
			// The document is rendered; a journal outage does not block the download.
			slog.ErrorContext(ctx, "Failed to journal export", "format", format, "error", err)
		}
		doc.ID = id
	}
	return doc, nil
}

func (s *ReportService) record(ctx context.Context, grid export.Grid, format Format, filename string, status storage.Status) (int64, error) {
	payload, err := export.EncodePayload(grid)
	if err != nil {
		return 0, fmt.Errorf("encode export payload: %w", err)
	}
	id, err := s.storage.RecordExport(ctx, storage.ExportRecord{
		Report:        string(grid.Kind),
		Format:        string(format),
		Filter:        grid.FilterKey,
		RecordCount:   grid.RecordCount,
		GrandAmount:   grid.GrandAmount,
		GrandQuantity: grid.GrandQuantity,
		Filename:      filename,
		Payload:       payload,
		Status:        status,
	})
	if err != nil {
		return 0, fmt.Errorf("record export: %w", err)
	}
	return id, nil
}

func (s *ReportService) publishExportMessage(ctx context.Context, id int64, report string) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping publish message")
		return nil
	}
	return s.amqpClient.PublishExport(ctx, id, report)
}

func (s *ReportService) logFetch(ctx context.Context, sess *Session, report string, phase view.Phase, message string, records, rejected int) {
	switch phase {
	case view.Failed:
		s.fetchLog.LogFetch(ctx, sess.ID, report, 0, 0, errors.New(message))
	case view.Ready:
		s.fetchLog.LogFetch(ctx, sess.ID, report, records, rejected, nil)
	}
}

// Close closes both storage and AMQP connections
func (s *ReportService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close report service: %v", errs)
	}

	return nil
}
