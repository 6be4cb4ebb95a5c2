package oracle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Price files carry one symbol each: a symbol header plus a timestamp map.
// The single most recent timestamp holds only the entry price; every earlier
// timestamp holds the full OHLCV tuple. The asymmetry is part of the data
// contract, and validateSeries rejects files that break it.

type priceFile struct {
	Symbol  string                `json:"symbol"`
	Records map[string]fileRecord `json:"records"`
}

type fileRecord struct {
	Entry  *decimal.Decimal `json:"entry,omitempty"`
	Open   *decimal.Decimal `json:"open,omitempty"`
	High   *decimal.Decimal `json:"high,omitempty"`
	Low    *decimal.Decimal `json:"low,omitempty"`
	Close  *decimal.Decimal `json:"close,omitempty"`
	Volume *int64           `json:"volume,omitempty"`
}

// Load reads every *.json price file in dir into a validated store.
func Load(dir string) (*Store, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no price files in %s", dir)
	}
	sort.Strings(paths)

	store := NewStore()
	for _, path := range paths {
		if err := loadFile(store, path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return store, nil
}

func loadFile(store *Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file priceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Symbol == "" {
		return fmt.Errorf("missing symbol header")
	}

	points := make([]PricePoint, 0, len(file.Records))
	for key, rec := range file.Records {
		ts, err := parseTimestamp(key)
		if err != nil {
			return err
		}
		point, err := rec.toPoint(file.Symbol, ts)
		if err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return store.Add(file.Symbol, points)
}

// parseTimestamp accepts daily keys (2006-01-02) and intraday keys
// (2006-01-02 15:04), both in market time treated as UTC.
func parseTimestamp(key string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if ts, err := time.Parse(layout, key); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp key %q", key)
}

func (r fileRecord) toPoint(symbol string, ts time.Time) (PricePoint, error) {
	full := r.Open != nil || r.High != nil || r.Low != nil || r.Close != nil || r.Volume != nil
	if full {
		if r.Open == nil || r.High == nil || r.Low == nil || r.Close == nil || r.Volume == nil {
			return PricePoint{}, fmt.Errorf("incomplete candle")
		}
		if r.Entry != nil {
			return PricePoint{}, fmt.Errorf("entry field on a full record")
		}
		return PricePoint{
			Symbol:    symbol,
			Timestamp: ts,
			Entry:     *r.Open,
			Candle: &Candle{
				Open:   *r.Open,
				High:   *r.High,
				Low:    *r.Low,
				Close:  *r.Close,
				Volume: *r.Volume,
			},
		}, nil
	}
	if r.Entry == nil {
		return PricePoint{}, fmt.Errorf("empty record")
	}
	return PricePoint{Symbol: symbol, Timestamp: ts, Entry: *r.Entry}, nil
}

// validateSeries enforces the dataset contract before any query can observe
// the data: ascending unique timestamps, positive prices, consistent candle
// bounds, and exactly one entry-only record sitting at the frontier.
func validateSeries(symbol string, points []PricePoint) error {
	if len(points) == 0 {
		return fmt.Errorf("series %s is empty", symbol)
	}
	for i, p := range points {
		if p.Symbol != symbol {
			return fmt.Errorf("series %s: point %d has symbol %s", symbol, i, p.Symbol)
		}
		if i > 0 && !points[i-1].Timestamp.Before(p.Timestamp) {
			return fmt.Errorf("series %s: timestamps not strictly ascending at %d", symbol, i)
		}
		last := i == len(points)-1
		if last {
			if p.Candle != nil {
				return fmt.Errorf("series %s: frontier record must be entry-only", symbol)
			}
			if p.Entry.Sign() <= 0 {
				return fmt.Errorf("series %s: frontier entry price must be positive", symbol)
			}
			continue
		}
		c := p.Candle
		if c == nil {
			return fmt.Errorf("series %s: non-frontier record at %d lacks a candle", symbol, i)
		}
		if c.Low.Sign() <= 0 {
			return fmt.Errorf("series %s: non-positive price at %d", symbol, i)
		}
		if c.High.LessThan(c.Low) ||
			c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) ||
			c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
			return fmt.Errorf("series %s: inconsistent candle at %d", symbol, i)
		}
		if c.Volume < 0 {
			return fmt.Errorf("series %s: negative volume at %d", symbol, i)
		}
	}
	return nil
}
