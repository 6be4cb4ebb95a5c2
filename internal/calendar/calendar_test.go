package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySkipsWeekends(t *testing.T) {
	// 2025-06-06 is a Friday, 2025-06-09 a Monday
	sessions, err := Build(Spec{
		Granularity: Daily,
		Start:       time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, time.Friday, sessions[0].Weekday())
	assert.Equal(t, time.Monday, sessions[1].Weekday())
	assert.Equal(t, time.Tuesday, sessions[2].Weekday())
}

func TestBuildDailyMidnightSessions(t *testing.T) {
	sessions, err := Build(Spec{
		Granularity: Daily,
		Start:       time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), sessions[0])
}

func TestBuildIntradayDefaultInstants(t *testing.T) {
	sessions, err := Build(Spec{
		Granularity: Intraday,
		Start:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sessions, 8)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), sessions[0])
	assert.Equal(t, time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), sessions[3])
	assert.Equal(t, time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC), sessions[4])
}

func TestBuildIntradayCustomInstants(t *testing.T) {
	sessions, err := Build(Spec{
		Granularity: Intraday,
		Instants:    []string{"09:30", "15:00"},
		Start:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC), sessions[0])
	assert.Equal(t, time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC), sessions[1])
}

func TestSpecValidate(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)

	assert.Error(t, Spec{Granularity: "hourly", Start: start, End: end}.Validate())
	assert.Error(t, Spec{Granularity: Daily}.Validate())
	assert.Error(t, Spec{Granularity: Daily, Start: end, End: start}.Validate())
	assert.Error(t, Spec{
		Granularity: Intraday,
		Instants:    []string{"11:00", "10:00"},
		Start:       start,
		End:         end,
	}.Validate())
	assert.Error(t, Spec{
		Granularity: Intraday,
		Instants:    []string{"25:00"},
		Start:       start,
		End:         end,
	}.Validate())
	assert.NoError(t, Spec{Granularity: Daily, Start: start, End: end}.Validate())
}
