// Package memory is an in-process report source for demos and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	"eaccountant/internal/source"
)

const (
	salesFile    = "monthly_sales.json"
	productsFile = "products.json"
)

// Store serves reports either from in-memory slices or from JSON seed files
// in a data directory. Seed files are re-read on every fetch so a refresh
// picks up edits.
type Store struct {
	mu     sync.Mutex
	dir    string
	fields source.FieldMap

	sales    []core.Record
	profits  map[core.Period][]core.ProfitRow
	products []core.Product

	failWith  error
	fetches   int
	published []export.Grid
}

// Ensure interface conformance
var (
	_ source.Reader    = (*Store)(nil)
	_ source.Publisher = (*Store)(nil)
)

func New(sales []core.Record, profits map[core.Period][]core.ProfitRow, products []core.Product) *Store {
	s := &Store{
		sales:    append([]core.Record(nil), sales...),
		profits:  make(map[core.Period][]core.ProfitRow, len(profits)),
		products: append([]core.Product(nil), products...),
		fields:   source.DefaultSalesFields(),
	}
	for p, rows := range profits {
		s.profits[p] = append([]core.ProfitRow(nil), rows...)
	}
	return s
}

// NewFromFiles serves monthly_sales.json, profits_<period>.json and
// products.json from base. Missing files read as empty reports.
func NewFromFiles(base string, fields source.FieldMap) *Store {
	return &Store{dir: base, fields: fields.WithDefaults()}
}

// SetSales replaces the in-memory sales records.
func (s *Store) SetSales(records []core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append([]core.Record(nil), records...)
}

// FailWith makes every read return err until called again with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Fetches is the number of reads served, failed ones included.
func (s *Store) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Published returns the grids received by Publish, oldest first.
func (s *Store) Published() []export.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.Grid(nil), s.published...)
}

func (s *Store) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.failWith
}

func (s *Store) MonthlySales(ctx context.Context) (core.Batch[core.Record], error) {
	if err := s.begin(ctx); err != nil {
		return core.Batch[core.Record]{}, err
	}
	if s.dir != "" {
		body, err := s.readFile(salesFile)
		if err != nil {
			return core.Batch[core.Record]{}, err
		}
		return source.DecodeSales(body, s.fields)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return validated(s.sales, core.Record.Validate), nil
}

func (s *Store) Profits(ctx context.Context, period core.Period) (core.Batch[core.ProfitRow], error) {
	if !period.IsValid() {
		return core.Batch[core.ProfitRow]{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	if err := s.begin(ctx); err != nil {
		return core.Batch[core.ProfitRow]{}, err
	}
	if s.dir != "" {
		body, err := s.readFile(fmt.Sprintf("profits_%s.json", period))
		if err != nil {
			return core.Batch[core.ProfitRow]{}, err
		}
		return source.DecodeProfits(body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return validated(s.profits[period], core.ProfitRow.Validate), nil
}

func (s *Store) Products(ctx context.Context) (core.Batch[core.Product], error) {
	if err := s.begin(ctx); err != nil {
		return core.Batch[core.Product]{}, err
	}
	if s.dir != "" {
		body, err := s.readFile(productsFile)
		if err != nil {
			return core.Batch[core.Product]{}, err
		}
		return source.DecodeProducts(body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return validated(s.products, core.Product.Validate), nil
}

// Publish stores the grid and returns a synthetic reference.
func (s *Store) Publish(ctx context.Context, grid export.Grid) (string, error) {
	if grid.Empty() {
		return "", export.ErrNoData
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", s.failWith
	}
	s.published = append(s.published, grid)
	return fmt.Sprintf("mem:%d", len(s.published)), nil
}

func (s *Store) readFile(name string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return body, nil
}

// validated applies the same per-record rejection as the decoders.
func validated[T any](items []T, validate func(T) error) core.Batch[T] {
	b := core.Batch[T]{Items: make([]T, 0, len(items))}
	for i, it := range items {
		if err := validate(it); err != nil {
			b.Rejected = append(b.Rejected, core.RecordError{Index: i, Err: err})
			continue
		}
		b.Items = append(b.Items, it)
	}
	return b
}
