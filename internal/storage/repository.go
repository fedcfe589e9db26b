package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an export id does not exist.
var ErrNotFound = errors.New("export not found")

// Status is the lifecycle state of a journal entry.
type Status string

const (
	// StatusStored is a download that is only journaled.
	StatusStored     Status = "stored"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// timeLayout is fixed width so that stored timestamps compare as strings.
const timeLayout = "2006-01-02 15:04:05.000000"

// ExportRecord is one row of the report_exports journal.
type ExportRecord struct {
	ID            int64
	Report        string
	Format        string
	Filter        string
	RecordCount   int
	GrandAmount   decimal.Decimal
	GrandQuantity int64
	Filename      string
	// Payload is the JSON encoded grid the export was rendered from.
	Payload      []byte
	Status       Status
	Attempts     int64
	LastError    string
	PublishedRef string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QueueStats counts journal entries per status.
type QueueStats struct {
	Stored     int64
	Pending    int64
	Processing int64
	Published  int64
	Failed     int64
}

// Total is the number of entries across all statuses.
func (s QueueStats) Total() int64 {
	return s.Stored + s.Pending + s.Processing + s.Published + s.Failed
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the journal database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

// RecordExport stores a new journal entry and returns its id. An empty status
// defaults to stored.
func (r *SQLiteRepository) RecordExport(ctx context.Context, rec ExportRecord) (int64, error) {
	if strings.TrimSpace(rec.Report) == "" || strings.TrimSpace(rec.Format) == "" {
		return 0, fmt.Errorf("record export: report and format are required")
	}
	if rec.Status == "" {
		rec.Status = StatusStored
	}
	if rec.Filter == "" {
		rec.Filter = "all"
	}
	ts := r.timestamp()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO report_exports
			(report, format, filter, record_count, grand_amount, grand_quantity,
			 filename, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Report, rec.Format, rec.Filter, rec.RecordCount, rec.GrandAmount.String(),
		rec.GrandQuantity, rec.Filename, rec.Payload, string(rec.Status), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert export: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("export id: %w", err)
	}

	slog.InfoContext(ctx, "Export journaled",
		"id", id,
		"report", rec.Report,
		"format", rec.Format,
		"filter", rec.Filter,
		"status", rec.Status)
	return id, nil
}

const selectColumns = `id, report, format, filter, record_count, grand_amount, grand_quantity,
	filename, payload, status, attempts, last_error, published_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(s rowScanner) (ExportRecord, error) {
	var (
		rec                  ExportRecord
		amount, status       string
		lastErr, ref         sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&rec.ID, &rec.Report, &rec.Format, &rec.Filter, &rec.RecordCount,
		&amount, &rec.GrandQuantity, &rec.Filename, &rec.Payload, &status, &rec.Attempts,
		&lastErr, &ref, &createdAt, &updatedAt); err != nil {
		return ExportRecord{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("export %d grand amount %q: %w", rec.ID, amount, err)
	}
	rec.GrandAmount = d
	rec.Status = Status(status)
	rec.LastError = lastErr.String
	rec.PublishedRef = ref.String
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GetExport retrieves a single export by id.
func (r *SQLiteRepository) GetExport(ctx context.Context, id int64) (ExportRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM report_exports WHERE id = ?`, id)
	rec, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportRecord{}, fmt.Errorf("get export %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ExportRecord{}, fmt.Errorf("get export %d: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the newest entries first, without payloads.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, report, format, filter, record_count, grand_amount, grand_quantity,
			filename, NULL, status, attempts, last_error, published_ref, created_at, updated_at
		FROM report_exports
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	return collect(rows)
}

// DequeuePending returns up to limit pending entries, oldest first.
func (r *SQLiteRepository) DequeuePending(ctx context.Context, limit int64) ([]ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM report_exports
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?`, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue pending exports: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]ExportRecord, error) {
	defer rows.Close()
	var out []ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return out, nil
}

// MarkPending queues a stored entry for publishing.
func (r *SQLiteRepository) MarkPending(ctx context.Context, id int64) error {
	return r.transition(ctx, id, "mark pending",
		`UPDATE report_exports SET status = 'pending', updated_at = ?
		WHERE id = ? AND status IN ('stored', 'failed')`)
}

// MarkProcessing claims a pending entry. It fails with ErrNotFound when the
// entry is missing or no longer pending.
func (r *SQLiteRepository) MarkProcessing(ctx context.Context, id int64) error {
	return r.transition(ctx, id, "mark processing",
		`UPDATE report_exports SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'pending'`)
}

// MarkPublished records a successful publish and its destination reference.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports
		SET status = 'published', published_ref = ?, last_error = NULL, updated_at = ?
		WHERE id = ?`, ref, r.timestamp(), id)
	if err := affected(res, err); err != nil {
		return fmt.Errorf("mark published %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Export marked as published", "id", id, "ref", ref)
	return nil
}

// IncrementAttempt counts a failed attempt and puts the entry back to pending.
func (r *SQLiteRepository) IncrementAttempt(ctx context.Context, id int64, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports
		SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, errMsg, r.timestamp(), id)
	if err := affected(res, err); err != nil {
		return fmt.Errorf("increment attempt %d: %w", id, err)
	}
	return nil
}

// MarkFailed gives up on an entry.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports
		SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, errMsg, r.timestamp(), id)
	if err := affected(res, err); err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	slog.WarnContext(ctx, "Export marked as failed", "id", id, "error", errMsg)
	return nil
}

// ResetStaleProcessing returns entries left in processing by a crashed worker
// to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports SET status = 'pending', updated_at = ?
		WHERE status = 'processing'`, r.timestamp())
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale processing exports", "count", n)
	}
	return nil
}

// RetryFailed puts every failed entry back to pending with a fresh attempt
// count.
func (r *SQLiteRepository) RetryFailed(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports SET status = 'pending', attempts = 0, updated_at = ?
		WHERE status = 'failed'`, r.timestamp())
	if err != nil {
		return 0, fmt.Errorf("retry failed exports: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CleanupPublished drops the payload of entries published before the cutoff.
// The journal row itself is kept.
func (r *SQLiteRepository) CleanupPublished(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_exports SET payload = NULL
		WHERE status = 'published' AND payload IS NOT NULL AND updated_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("cleanup published exports: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats counts entries per status.
func (r *SQLiteRepository) Stats(ctx context.Context) (QueueStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM report_exports GROUP BY status`)
	if err != nil {
		return QueueStats{}, fmt.Errorf("export stats: %w", err)
	}
	defer rows.Close()

	var st QueueStats
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return QueueStats{}, fmt.Errorf("scan export stats: %w", err)
		}
		switch Status(status) {
		case StatusStored:
			st.Stored = n
		case StatusPending:
			st.Pending = n
		case StatusProcessing:
			st.Processing = n
		case StatusPublished:
			st.Published = n
		case StatusFailed:
			st.Failed = n
		}
	}
	return st, rows.Err()
}

func (r *SQLiteRepository) transition(ctx context.Context, id int64, op, query string) error {
	res, err := r.db.ExecContext(ctx, query, r.timestamp(), id)
	if err := affected(res, err); err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
