package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"main/internal/schema"
)

// PlaybackConfig controls audit log playback.
type PlaybackConfig struct {
	Path string
	// Speed scales simulated time: 0 replays as fast as possible, 1 paces
	// one simulated minute per wall minute.
	Speed float64
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("invalid playback config: Path is empty")
	}
	if c.Speed < 0 {
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	}
	return nil
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays audit records in log order, paced by their simulation
// timestamps.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run replays the log and calls the handler for each record.
func (p *Playback) Run(ctx context.Context, handler func(Record) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	records, err := ReadFile(p.cfg.Path)
	if err != nil {
		return err
	}

	var prev time.Time
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.pace(ctx, rec, &prev); err != nil {
			return err
		}
		if err := handler(rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) pace(ctx context.Context, rec Record, prev *time.Time) error {
	if p.cfg.Speed <= 0 {
		return nil
	}
	current, err := schema.ParseDate(rec.Timestamp)
	if err != nil {
		// unparsable timestamps replay without pacing
		return nil
	}
	if !prev.IsZero() {
		delta := current.Sub(*prev)
		if delta > 0 {
			sleep := time.Duration(float64(delta) / p.cfg.Speed)
			if err := p.clock.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}
	*prev = current
	return nil
}
