package oracle

import (
	"time"

	"github.com/shopspring/decimal"
)

// View is the store bound to a single session instant. Strategy code only
// ever receives a View, so nothing downstream can ask for data beyond the
// instant it was cut at.
type View struct {
	store *Store
	asOf  time.Time
}

// At binds the store to a session instant.
func (s *Store) At(asOf time.Time) *View {
	return &View{store: s, asOf: asOf}
}

// AsOf returns the instant the view is cut at.
func (v *View) AsOf() time.Time {
	return v.asOf
}

// Symbols returns every symbol the dataset covers.
func (v *View) Symbols() []string {
	return v.store.Symbols()
}

// Price returns the session's record for the symbol, ErrNotFound when the
// dataset has no record at this exact instant.
func (v *View) Price(symbol string) (PricePoint, error) {
	return v.store.GetPrice(symbol, v.asOf)
}

// History returns up to lookback records ending at (and including) the
// view's instant, oldest first.
func (v *View) History(symbol string, lookback int) ([]PricePoint, error) {
	points, err := v.store.GetSeries(symbol, time.Time{}, v.asOf)
	if err != nil {
		return nil, err
	}
	if lookback > 0 && len(points) > lookback {
		points = points[len(points)-lookback:]
	}
	return points, nil
}

// PriorClose returns the close of the latest full session before the
// view's instant.
func (v *View) PriorClose(symbol string) (decimal.Decimal, error) {
	return v.store.PriorClose(symbol, v.asOf)
}
