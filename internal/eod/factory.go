package eod

import (
	"time"

	"fno-desk/internal/interfaces"
)

var defaultSummarizer interfaces.EodSummarizer = NewSummarizer(23, 45)

func SetDefaultSummarizer(summarizer interfaces.EodSummarizer) {
	defaultSummarizer = summarizer
}

// NewSummarizer returns a summarizer that becomes due at hour:minute IST.
// MCX trades until late evening, so the desk defaults to 23:45.
func NewSummarizer(hour, minute int) interfaces.EodSummarizer {
	return &eodSummarizer{cutoffHour: hour, cutoffMinute: minute, now: istNow}
}

func SummarizeDay(t time.Time) (string, error) {
	return defaultSummarizer.SummarizeDay(t)
}

func SummarizeToday() (string, error) {
	return defaultSummarizer.SummarizeToday()
}

func ShouldRunNow() (bool, string) {
	return defaultSummarizer.ShouldRunNow()
}
