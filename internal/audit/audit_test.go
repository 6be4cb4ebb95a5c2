package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func session(d, h int) time.Time {
	return time.Date(2025, 6, d, h, 0, 0, 0, time.UTC)
}

func TestWriterAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	records := []Record{
		New(schema.AuditMarketAnalysis, session(2, 10), "run-1", "alpha", "2 symbols visible", nil),
		New(schema.AuditDecision, session(2, 10), "run-1", "alpha", "entering 600519", map[string]string{"symbol": "600519"}),
		New(schema.AuditTrade, session(2, 10), "run-1", "alpha", "buy 600519 x200 at 30.18", nil),
	}
	for _, rec := range records {
		require.NoError(t, w.TryAppend(rec))
	}
	require.NoError(t, w.Close())

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, schema.AuditMarketAnalysis, got[0].Type)
	assert.Equal(t, "2025-06-02 10:00", got[0].Timestamp)
	assert.Equal(t, "entering 600519", got[1].Summary)
	assert.Equal(t, "run-1", got[2].RunID)
}

func TestWriterLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(DefaultConfig(path))
	require.NoError(t, err)

	rec := New(schema.AuditDecision, session(2, 10), "", "alpha", "x", nil)
	assert.ErrorIs(t, w.TryAppend(rec), ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.TryAppend(rec), ErrClosed)
}

func TestWriterQueueFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Path: path, QueueSize: 1})
	require.NoError(t, err)
	// never started: the queue only fills
	w.started = 1

	rec := New(schema.AuditDecision, session(2, 10), "", "alpha", "x", nil)
	require.NoError(t, w.TryAppend(rec))
	assert.ErrorIs(t, w.TryAppend(rec), ErrQueueFull)
}

func TestReadFileMissing(t *testing.T) {
	got, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

type instantClock struct {
	slept []time.Duration
}

func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackPacesBySimulationTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.TryAppend(New(schema.AuditDecision, session(2, 10), "", "alpha", "first", nil)))
	require.NoError(t, w.TryAppend(New(schema.AuditDecision, session(2, 11), "", "alpha", "second", nil)))
	require.NoError(t, w.Close())

	playback, err := NewPlayback(PlaybackConfig{Path: path, Speed: 60})
	require.NoError(t, err)
	clock := &instantClock{}
	playback.WithClock(clock)

	var summaries []string
	require.NoError(t, playback.Run(context.Background(), func(rec Record) error {
		summaries = append(summaries, rec.Summary)
		return nil
	}))
	assert.Equal(t, []string{"first", "second"}, summaries)
	// one simulated hour at 60x plays back in one minute
	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Minute, clock.slept[0])
}

func TestPlaybackNoPacingAtSpeedZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.TryAppend(New(schema.AuditDecision, session(2, 10), "", "alpha", "first", nil)))
	require.NoError(t, w.TryAppend(New(schema.AuditDecision, session(3, 10), "", "alpha", "second", nil)))
	require.NoError(t, w.Close())

	playback, err := NewPlayback(PlaybackConfig{Path: path})
	require.NoError(t, err)
	clock := &instantClock{}
	playback.WithClock(clock)

	count := 0
	require.NoError(t, playback.Run(context.Background(), func(Record) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
	assert.Empty(t, clock.slept)
}
