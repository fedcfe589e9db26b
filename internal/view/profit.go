package view

import (
	"context"
	"sync"
	"time"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
	"eaccountant/internal/source"
)

type ProfitSnapshot struct {
	Phase     Phase
	Message   string
	FetchedAt time.Time
	Period    core.Period
	Rows      []core.ProfitRow // sorted by period
	Totals    core.ProfitTotals
	Warnings  []string
}

// ProfitScreen is the profit report with its period selection. Unlike the
// sales filter, changing the period fetches again.
type ProfitScreen struct {
	reader  source.ProfitReader
	machine *Machine[core.Batch[core.ProfitRow]]

	mu     sync.Mutex
	period core.Period
}

func NewProfitScreen(r source.ProfitReader, period core.Period) *ProfitScreen {
	if !period.IsValid() {
		period = core.Monthly
	}
	s := &ProfitScreen{reader: r, period: period}
	s.machine = NewMachine(func(ctx context.Context) (core.Batch[core.ProfitRow], error) {
		return r.Profits(ctx, s.Period())
	})
	return s
}

func (s *ProfitScreen) Period() core.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

func (s *ProfitScreen) Initialize(ctx context.Context) (ProfitSnapshot, error) {
	_, err := s.machine.Initialize(ctx)
	return s.Snapshot(), err
}

func (s *ProfitScreen) Refresh(ctx context.Context) (ProfitSnapshot, error) {
	_, err := s.machine.Refresh(ctx)
	return s.Snapshot(), err
}

func (s *ProfitScreen) Retry(ctx context.Context) (ProfitSnapshot, error) {
	_, err := s.machine.Retry(ctx)
	return s.Snapshot(), err
}

// SelectPeriod switches the period and fetches its report. Selecting the
// current period of a loaded screen is a no-op.
func (s *ProfitScreen) SelectPeriod(ctx context.Context, period core.Period) (ProfitSnapshot, error) {
	if !period.IsValid() {
		return s.Snapshot(), core.ErrInvalidPeriod
	}
	if period == s.Period() && s.machine.State().Phase() == Ready {
		return s.Snapshot(), nil
	}
	fetch := func(ctx context.Context) (core.Batch[core.ProfitRow], error) {
		return s.reader.Profits(ctx, period)
	}
	_, err := s.machine.run(ctx, fetch, func() {
		s.mu.Lock()
		s.period = period
		s.mu.Unlock()
	})
	return s.Snapshot(), err
}

func (s *ProfitScreen) Snapshot() ProfitSnapshot {
	st := s.machine.State()
	snap := ProfitSnapshot{
		Phase:     st.Phase(),
		Message:   st.Message(),
		FetchedAt: st.FetchedAt(),
		Period:    s.Period(),
	}
	if batch, ok := st.Data(); ok {
		snap.Rows = report.SortProfits(batch.Items)
		snap.Totals = report.SummarizeProfits(snap.Rows)
		snap.Warnings = batch.Warnings()
	}
	return snap
}
