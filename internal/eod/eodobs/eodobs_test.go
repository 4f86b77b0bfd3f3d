package eodobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	path     string
	err      error
	due      bool
	dayCalls []time.Time
}

func (f *fakeSummarizer) SummarizeDay(t time.Time) (string, error) {
	f.dayCalls = append(f.dayCalls, t)
	return f.path, f.err
}

func (f *fakeSummarizer) SummarizeToday() (string, error) { return f.path, f.err }

func (f *fakeSummarizer) ShouldRunNow() (bool, string) { return f.due, "logs/eod/today.csv" }

func TestOutcome(t *testing.T) {
	assert.Equal(t, outcomeWritten, outcome("logs/eod/2026-11-20.csv", nil))
	assert.Equal(t, outcomeEmpty, outcome("", nil))
	assert.Equal(t, outcomeFailed, outcome("", errors.New("read journal")))
}

func TestWrapPassesThrough(t *testing.T) {
	inner := &fakeSummarizer{path: "logs/eod/2026-11-20.csv"}
	s := Wrap(inner, "23:45")

	day := time.Date(2026, 11, 20, 18, 0, 0, 0, time.UTC)
	p, err := s.SummarizeDay(day)
	require.NoError(t, err)
	assert.Equal(t, inner.path, p)
	assert.Equal(t, []time.Time{day}, inner.dayCalls)

	inner.path, inner.err = "", errors.New("disk full")
	_, err = s.SummarizeToday()
	assert.EqualError(t, err, "disk full")

	inner.due = true
	due, p := s.ShouldRunNow()
	assert.True(t, due)
	assert.Equal(t, "logs/eod/today.csv", p)
}

func TestFirstFireOncePerDay(t *testing.T) {
	oes := Wrap(&fakeSummarizer{}, "23:45").(*observableEodSummarizer)
	assert.True(t, oes.firstFire("2026-11-20"))
	assert.False(t, oes.firstFire("2026-11-20"))
	assert.True(t, oes.firstFire("2026-11-21"))
}

func TestISTDay(t *testing.T) {
	// 20:00 UTC is already the next day in IST
	late := time.Date(2026, 11, 20, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-11-21", istDay(late))
}
