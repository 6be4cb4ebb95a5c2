package calendar

import (
	"fmt"
	"time"
)

// Granularity selects how many decision sessions a trading day has.
type Granularity string

const (
	// Daily holds one session per trading day.
	Daily Granularity = "daily"
	// Intraday holds a fixed set of instants per trading day.
	Intraday Granularity = "intraday"
)

// DefaultInstants are the intraday decision times when none are configured.
var DefaultInstants = []string{"10:00", "11:00", "13:30", "14:30"}

// Spec defines a simulation calendar: market granularity plus the run's
// inclusive day bounds. Weekends are never sessions.
type Spec struct {
	Granularity Granularity
	// Instants are "15:04" clock times, intraday only.
	Instants []string
	Start    time.Time
	End      time.Time
}

// Validate checks the spec.
func (s Spec) Validate() error {
	switch s.Granularity {
	case Daily, Intraday:
	default:
		return fmt.Errorf("invalid calendar: unknown granularity %q", s.Granularity)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("invalid calendar: start/end bounds are required")
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("invalid calendar: end precedes start")
	}
	if s.Granularity == Intraday {
		if _, err := parseInstants(s.instants()); err != nil {
			return err
		}
	}
	return nil
}

func (s Spec) instants() []string {
	if len(s.Instants) > 0 {
		return s.Instants
	}
	return DefaultInstants
}

// Build computes the ordered set of decision timestamps for the spec.
func Build(spec Spec) ([]time.Time, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var offsets []time.Duration
	if spec.Granularity == Intraday {
		parsed, err := parseInstants(spec.instants())
		if err != nil {
			return nil, err
		}
		offsets = parsed
	} else {
		offsets = []time.Duration{0}
	}

	start := dayOf(spec.Start)
	end := dayOf(spec.End)
	var sessions []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, offset := range offsets {
			sessions = append(sessions, day.Add(offset))
		}
	}
	return sessions, nil
}

func parseInstants(instants []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(instants))
	var prev time.Duration = -1
	for _, instant := range instants {
		clock, err := time.Parse("15:04", instant)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar instant %q: %w", instant, err)
		}
		offset := time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute
		if offset <= prev {
			return nil, fmt.Errorf("calendar instants must be strictly ascending")
		}
		prev = offset
		out = append(out, offset)
	}
	return out, nil
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
