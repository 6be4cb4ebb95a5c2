package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotPosition is one symbol entry in a persisted snapshot.
type SnapshotPosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	Cost          decimal.Decimal `json:"cost"`
	BoughtInCycle decimal.Decimal `json:"bought_in_cycle"`
	CycleDay      string          `json:"cycle_day,omitempty"`
}

// Snapshot is the materialized book state at a journal position. It carries
// no wall-clock fields: replaying the same journal prefix always reproduces
// the same bytes.
type Snapshot struct {
	Agent     string             `json:"agent"`
	LastSeq   uint64             `json:"last_seq"`
	LastDate  string             `json:"last_date,omitempty"`
	Cash      decimal.Decimal    `json:"cash"`
	Positions []SnapshotPosition `json:"positions"`
}

const cycleDayLayout = "2006-01-02"

// Snapshot materializes the book at the given journal position.
func (b *Book) Snapshot(agent string, lastSeq uint64, lastDate string) Snapshot {
	entries := make([]SnapshotPosition, 0, len(b.positions))
	for symbol, pos := range b.positions {
		entry := SnapshotPosition{
			Symbol:        symbol,
			Qty:           pos.Qty,
			Cost:          pos.Cost,
			BoughtInCycle: pos.BoughtInCycle,
		}
		if !pos.CycleDay.IsZero() {
			entry.CycleDay = pos.CycleDay.Format(cycleDayLayout)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{
		Agent:     agent,
		LastSeq:   lastSeq,
		LastDate:  lastDate,
		Cash:      b.cash,
		Positions: entries,
	}
}

// Bytes renders the canonical encoding used for on-disk snapshots and for
// replay-equality checks.
func (s Snapshot) Bytes() ([]byte, error) {
	return json.Marshal(s)
}

// BookFromSnapshot rebuilds the in-memory book from a snapshot.
func BookFromSnapshot(snap Snapshot) (*Book, error) {
	book := NewBook(snap.Cash)
	for _, entry := range snap.Positions {
		pos := &Position{
			Qty:           entry.Qty,
			Cost:          entry.Cost,
			BoughtInCycle: entry.BoughtInCycle,
		}
		if entry.CycleDay != "" {
			day, err := time.Parse(cycleDayLayout, entry.CycleDay)
			if err != nil {
				return nil, fmt.Errorf("%w: snapshot cycle day %q", ErrCorrupted, entry.CycleDay)
			}
			pos.CycleDay = day.UTC()
		}
		book.positions[entry.Symbol] = pos
	}
	return book, nil
}

// WriteSnapshot persists a snapshot atomically: temp file, fsync, rename.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := snap.Bytes()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadSnapshot loads a snapshot. os.ErrNotExist passes through so callers
// can treat a missing snapshot as a fresh ledger.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot: %v", ErrCorrupted, err)
	}
	return snap, nil
}
