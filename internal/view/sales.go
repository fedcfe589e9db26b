package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"eaccountant/internal/core"
	"eaccountant/internal/report"
	"eaccountant/internal/source"
)

// SalesSnapshot is what the monthly sales screen shows at one instant.
type SalesSnapshot struct {
	Phase     Phase
	Message   string
	FetchedAt time.Time
	Filter    core.FilterState
	View      report.View // zero unless Ready
	Warnings  []string
}

// SalesScreen combines the fetch lifecycle of the monthly sales report with
// the bucket filter.
type SalesScreen struct {
	machine *Machine[core.Batch[core.Record]]

	mu     sync.Mutex
	filter core.FilterState
}

func NewSalesScreen(r source.SalesReader) *SalesScreen {
	return &SalesScreen{
		machine: NewMachine(r.MonthlySales),
		filter:  core.AllBuckets(),
	}
}

func (s *SalesScreen) Initialize(ctx context.Context) (SalesSnapshot, error) {
	_, err := s.machine.Initialize(ctx)
	return s.settle(err)
}

func (s *SalesScreen) Refresh(ctx context.Context) (SalesSnapshot, error) {
	_, err := s.machine.Refresh(ctx)
	return s.settle(err)
}

func (s *SalesScreen) Retry(ctx context.Context) (SalesSnapshot, error) {
	_, err := s.machine.Retry(ctx)
	return s.settle(err)
}

// settle snapshots after a fetch. A selection that no longer exists in the
// refreshed data falls back to all buckets.
func (s *SalesScreen) settle(gateErr error) (SalesSnapshot, error) {
	st := s.machine.State()
	if batch, ok := st.Data(); ok {
		s.mu.Lock()
		if report.ValidateBucket(batch.Items, s.filter.SelectedBucket) != nil {
			s.filter = core.AllBuckets()
		}
		s.mu.Unlock()
	}
	snap, err := s.Snapshot()
	if gateErr != nil {
		return snap, gateErr
	}
	return snap, err
}

// SelectBucket changes the filter. It only applies to loaded data and
// never fetches.
func (s *SalesScreen) SelectBucket(bucket string) (SalesSnapshot, error) {
	st := s.machine.State()
	batch, ok := st.Data()
	if !ok {
		snap, _ := s.Snapshot()
		return snap, ErrNotReady
	}
	filter := core.FilterState{SelectedBucket: bucket}
	if err := report.ValidateBucket(batch.Items, filter.SelectedBucket); err != nil {
		snap, _ := s.Snapshot()
		return snap, err
	}
	s.mu.Lock()
	s.filter = core.FilterState{SelectedBucket: filter.Key()}
	s.mu.Unlock()
	return s.Snapshot()
}

// Filter returns the active filter.
func (s *SalesScreen) Filter() core.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Snapshot derives the current view. Outside Ready only the phase and the
// failure message are set.
func (s *SalesScreen) Snapshot() (SalesSnapshot, error) {
	st := s.machine.State()
	filter := s.Filter()
	snap := SalesSnapshot{
		Phase:     st.Phase(),
		Message:   st.Message(),
		FetchedAt: st.FetchedAt(),
		Filter:    filter,
	}
	batch, ok := st.Data()
	if !ok {
		return snap, nil
	}
	v, err := report.BuildView(batch.Items, filter)
	if errors.Is(err, report.ErrUnknownBucket) {
		filter = core.AllBuckets()
		v, err = report.BuildView(batch.Items, filter)
		snap.Filter = filter
	}
	if err != nil {
		return snap, err
	}
	snap.View = v
	snap.Warnings = batch.Warnings()
	return snap, nil
}

// Records returns the full loaded set, regardless of the filter.
func (s *SalesScreen) Records() ([]core.Record, bool) {
	batch, ok := s.machine.State().Data()
	return batch.Items, ok
}
