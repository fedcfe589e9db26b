package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eaccountant/internal/source"
	"eaccountant/internal/storage"
	"eaccountant/internal/worker"
)

// PublishProcessorConfig holds configuration for the publish processor
type PublishProcessorConfig struct {
	// PollInterval is how often to check for pending exports (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of exports to publish per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before an export is marked as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often published payloads are dropped (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old a published export must be before its payload is dropped (default: 24h)
	CleanupAge time.Duration
}

// DefaultPublishProcessorConfig returns sensible defaults
func DefaultPublishProcessorConfig() PublishProcessorConfig {
	return PublishProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// PublishProcessor polls the export journal for pending entries. It covers
// requests whose AMQP message was never sent or was lost.
type PublishProcessor struct {
	storage *storage.SQLiteRepository
	worker  *worker.PublishWorker
	config  PublishProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPublishProcessor creates a new publish processor
func NewPublishProcessor(
	storage *storage.SQLiteRepository,
	publisher source.Publisher,
	config PublishProcessorConfig,
) *PublishProcessor {
	return &PublishProcessor{
		storage: storage,
		worker:  worker.NewPublishWorker(storage, publisher, config.MaxRetries),
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *PublishProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publish processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	// Reset any stale processing entries from previous crashes
	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing exports", "error", err)
	}

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Publish processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *PublishProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Publish processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Publish processor stop timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *PublishProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PublishProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx, stop)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx, stop)
		case <-cleanupTicker.C:
			p.cleanupPublished(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending exports and returns how many
// were attempted.
func (p *PublishProcessor) ProcessBatch(ctx context.Context) int {
	return p.processBatch(ctx, nil)
}

// processBatch stops between items once stop is closed.
func (p *PublishProcessor) processBatch(ctx context.Context, stop <-chan struct{}) int {
	items, err := p.storage.DequeuePending(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue pending exports", "error", err)
		return 0
	}

	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing publish batch", "count", len(items))

	attempted := 0
	for _, item := range items {
		select {
		case <-stop:
			return attempted
		case <-ctx.Done():
			return attempted
		default:
		}

		if err := p.storage.MarkProcessing(ctx, item.ID); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.ErrorContext(ctx, "Failed to mark export as processing",
					"id", item.ID, "error", err)
			}
			// claimed by the AMQP consumer in the meantime
			continue
		}

		attempted++
		if err := p.worker.PublishClaimed(ctx, item); err != nil {
			slog.WarnContext(ctx, "Publish deferred to next poll",
				"id", item.ID, "error", err)
		}
	}
	return attempted
}

// cleanupPublished drops the payloads of old published exports
func (p *PublishProcessor) cleanupPublished(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.storage.CleanupPublished(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup published exports", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Dropped published export payloads", "count", n)
	}
}

// Stats returns current journal statistics
func (p *PublishProcessor) Stats(ctx context.Context) (storage.QueueStats, error) {
	return p.storage.Stats(ctx)
}

// RetryFailed resets all failed exports for another round of attempts
func (p *PublishProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailed(ctx)
}
