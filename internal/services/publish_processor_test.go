package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eaccountant/internal/export"
	"eaccountant/internal/source/memory"
	"eaccountant/internal/storage"
)

func TestNewPublishProcessor(t *testing.T) {
	config := DefaultPublishProcessorConfig()
	processor := NewPublishProcessor(nil, nil, config)

	if processor == nil {
		t.Fatal("NewPublishProcessor should return non-nil processor")
	}
	if processor.storage != nil {
		t.Error("storage should be nil when passed nil")
	}
	if processor.worker == nil {
		t.Error("worker should always be created")
	}
}

func TestDefaultPublishProcessorConfig(t *testing.T) {
	config := DefaultPublishProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestPublishProcessor_IsRunning(t *testing.T) {
	processor := NewPublishProcessor(nil, nil, DefaultPublishProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestPublishProcessor_StartTwice(t *testing.T) {
	processor := NewPublishProcessor(nil, nil, DefaultPublishProcessorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestPublishProcessor_StopNotRunning(t *testing.T) {
	processor := NewPublishProcessor(nil, nil, DefaultPublishProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestPublishProcessor_RetriesThenFails(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	svc, repo := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	id, err := svc.Publish(ctx, sess, export.KindMonthlySales, "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	config := DefaultPublishProcessorConfig()
	config.MaxRetries = 2
	proc := NewPublishProcessor(repo, store, config)

	store.FailWith(errors.New("sheets quota exceeded"))
	proc.ProcessBatch(ctx)
	rec, _ := repo.GetExport(ctx, id)
	if rec.Status != storage.StatusPending || rec.Attempts != 1 {
		t.Fatalf("after first failure = %s attempts %d", rec.Status, rec.Attempts)
	}

	proc.ProcessBatch(ctx)
	rec, _ = repo.GetExport(ctx, id)
	if rec.Status != storage.StatusFailed || rec.LastError == "" {
		t.Fatalf("after second failure = %s %q", rec.Status, rec.LastError)
	}

	// failed entries are not picked up until retried
	if n := proc.ProcessBatch(ctx); n != 0 {
		t.Fatalf("ProcessBatch attempted %d failed entries", n)
	}

	stats, err := proc.Stats(ctx)
	if err != nil || stats.Failed != 1 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}

	store.FailWith(nil)
	if n, err := proc.RetryFailed(ctx); err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
	proc.ProcessBatch(ctx)
	rec, _ = repo.GetExport(ctx, id)
	if rec.Status != storage.StatusPublished {
		t.Fatalf("after retry = %s", rec.Status)
	}
}

func TestPublishProcessor_StartStop(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	svc, repo := newTestService(t, store)
	ctx := context.Background()
	sess, _ := svc.Session("")

	id, err := svc.Publish(ctx, sess, export.KindMonthlySales, "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	config := DefaultPublishProcessorConfig()
	config.PollInterval = 20 * time.Millisecond
	proc := NewPublishProcessor(repo, store, config)
	if err := proc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, _ := repo.GetExport(ctx, id)
		if rec.Status == storage.StatusPublished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("export not published, status %s", rec.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := proc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if proc.IsRunning() {
		t.Error("processor still running after Stop")
	}
}

func TestPublishProcessor_ConcurrentStop(t *testing.T) {
	store := memory.New(sampleSales(), nil, nil)
	_, repo := newTestService(t, store)
	ctx := context.Background()

	config := DefaultPublishProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	proc := NewPublishProcessor(repo, store, config)

	for round := 0; round < 2; round++ {
		if err := proc.Start(ctx); err != nil {
			t.Fatalf("round %d: Start: %v", round, err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stopCtx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				errs <- proc.Stop(stopCtx)
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("round %d: Stop: %v", round, err)
			}
		}
		if proc.IsRunning() {
			t.Fatalf("round %d: processor still running after Stop", round)
		}
	}
}
