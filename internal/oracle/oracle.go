package oracle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound reports a symbol or timestamp the dataset does not cover.
// It is a normal, non-fatal condition: callers skip the symbol for the step.
var ErrNotFound = errors.New("price record not found")

// Candle is the full OHLCV tuple of a completed session.
type Candle struct {
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// PricePoint is one session's visible price data. At the dataset frontier
// (the single most-recent timestamp for the symbol) only Entry is known and
// Candle is nil; for every earlier session the full candle is present and
// Entry equals its open.
type PricePoint struct {
	Symbol    string
	Timestamp time.Time
	Entry     decimal.Decimal
	Candle    *Candle
}

// Partial reports whether the point is the entry-only frontier record.
func (p PricePoint) Partial() bool {
	return p.Candle == nil
}

// Store is the time-gated, read-only market data store. The dataset is
// loaded once per run and never mutated, so concurrent reads from any number
// of agent processes need no synchronization.
type Store struct {
	series map[string][]PricePoint
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{series: make(map[string][]PricePoint)}
}

// Add registers a symbol's full series. The series must satisfy the dataset
// contract (ascending unique timestamps, entry-only frontier, consistent
// candles); violations fail the load rather than surface mid-run.
func (s *Store) Add(symbol string, points []PricePoint) error {
	if symbol == "" {
		return fmt.Errorf("series symbol is empty")
	}
	if _, ok := s.series[symbol]; ok {
		return fmt.Errorf("series already exists: %s", symbol)
	}
	if err := validateSeries(symbol, points); err != nil {
		return err
	}
	owned := make([]PricePoint, len(points))
	copy(owned, points)
	s.series[symbol] = owned
	return nil
}

// Symbols returns the symbols present in the dataset, sorted.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.series))
	for symbol := range s.series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// GetPrice returns the record at exactly asOf. No record with a timestamp
// beyond asOf is ever visible, and the frontier record carries only the
// entry price: this method is the single gate all price access goes through.
func (s *Store) GetPrice(symbol string, asOf time.Time) (PricePoint, error) {
	points, ok := s.series[symbol]
	if !ok {
		return PricePoint{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	idx := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(asOf)
	})
	if idx >= len(points) || !points[idx].Timestamp.Equal(asOf) {
		return PricePoint{}, fmt.Errorf("%w: %s at %s", ErrNotFound, symbol, asOf.UTC().Format(time.RFC3339))
	}
	return points[idx], nil
}

// GetSeries returns the records within [from, to] in ascending order.
// The result is a fresh slice; records beyond to are never included.
func (s *Store) GetSeries(symbol string, from, to time.Time) ([]PricePoint, error) {
	points, ok := s.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	lo := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil, nil
	}
	out := make([]PricePoint, hi-lo)
	copy(out, points[lo:hi])
	return out, nil
}

// PriorClose returns the close of the latest full session strictly before
// asOf. Used by the validator's price-band check.
func (s *Store) PriorClose(symbol string, asOf time.Time) (decimal.Decimal, error) {
	points, ok := s.series[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	idx := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(asOf)
	})
	for i := idx - 1; i >= 0; i-- {
		if points[i].Candle != nil {
			return points[i].Candle.Close, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: no close before %s for %s", ErrNotFound, asOf.UTC().Format(time.RFC3339), symbol)
}

// Latest returns the symbol's most recent timestamp in the dataset.
func (s *Store) Latest(symbol string) (time.Time, bool) {
	points, ok := s.series[symbol]
	if !ok || len(points) == 0 {
		return time.Time{}, false
	}
	return points[len(points)-1].Timestamp, true
}
