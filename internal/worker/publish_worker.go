// Package worker publishes journaled report exports to the shared
// destination.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eaccountant/internal/amqp"
	"eaccountant/internal/export"
	"eaccountant/internal/source"
	"eaccountant/internal/storage"
)

// PublishWorker handles publish requests for entries of the export journal.
type PublishWorker struct {
	storage    *storage.SQLiteRepository
	publisher  source.Publisher
	maxRetries int
}

func NewPublishWorker(storage *storage.SQLiteRepository, publisher source.Publisher, maxRetries int) *PublishWorker {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &PublishWorker{
		storage:    storage,
		publisher:  publisher,
		maxRetries: maxRetries,
	}
}

// HandleMessage processes one publish request from AMQP. Entries that are
// missing, already published or claimed elsewhere are acknowledged without
// work. A returned error asks the broker to redeliver.
func (w *PublishWorker) HandleMessage(ctx context.Context, msg *amqp.PublishExportMessage) error {
	slog.InfoContext(ctx, "Processing publish message", "id", msg.ID, "report", msg.Report)

	rec, err := w.storage.GetExport(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Publish message for unknown export, dropping", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get export from storage: %w", err)
	}

	switch rec.Status {
	case storage.StatusPending:
	case storage.StatusPublished:
		slog.InfoContext(ctx, "Export already published, skipping",
			"id", rec.ID,
			"ref", rec.PublishedRef)
		return nil
	default:
		slog.DebugContext(ctx, "Export not pending, skipping", "id", rec.ID, "status", rec.Status)
		return nil
	}

	if err := w.storage.MarkProcessing(ctx, rec.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// claimed by the polling processor in the meantime
			return nil
		}
		return fmt.Errorf("claim export: %w", err)
	}
	return w.PublishClaimed(ctx, rec)
}

// PublishClaimed publishes an entry the caller has already marked as
// processing and records the outcome in the journal.
func (w *PublishWorker) PublishClaimed(ctx context.Context, rec storage.ExportRecord) error {
	grid, err := export.DecodePayload(rec.Payload)
	if err != nil {
		w.fail(ctx, rec, err)
		return nil
	}

	ref, err := w.publisher.Publish(ctx, grid)
	if err != nil {
		if errors.Is(err, export.ErrNoData) {
			w.fail(ctx, rec, err)
			return nil
		}
		w.retryOrFail(ctx, rec, err)
		return fmt.Errorf("publish export %d: %w", rec.ID, err)
	}

	if err := w.storage.MarkPublished(ctx, rec.ID, ref); err != nil {
		// The grid landed; a redelivery would publish it twice.
		slog.ErrorContext(ctx, "Failed to mark export as published",
			"id", rec.ID,
			"ref", ref,
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "Successfully published export",
		"id", rec.ID,
		"report", rec.Report,
		"filter", rec.Filter,
		"ref", ref,
		"grand_amount", rec.GrandAmount.StringFixed(2))
	return nil
}

func (w *PublishWorker) retryOrFail(ctx context.Context, rec storage.ExportRecord, cause error) {
	slog.WarnContext(ctx, "Publish attempt failed",
		"id", rec.ID,
		"attempt", rec.Attempts+1,
		"max_retries", w.maxRetries,
		"error", cause)

	if rec.Attempts+1 >= int64(w.maxRetries) {
		w.fail(ctx, rec, cause)
		return
	}
	if err := w.storage.IncrementAttempt(ctx, rec.ID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment publish attempt", "id", rec.ID, "error", err)
	}
}

func (w *PublishWorker) fail(ctx context.Context, rec storage.ExportRecord, cause error) {
	if err := w.storage.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark export as failed", "id", rec.ID, "error", err)
	}
	slog.ErrorContext(ctx, "Export failed permanently",
		"id", rec.ID,
		"attempts", rec.Attempts+1,
		"error", cause)
}
