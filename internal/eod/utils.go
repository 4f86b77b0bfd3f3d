package eod

import (
	"path/filepath"
	"time"

	"fno-desk/internal/tradelog"
)

func istNow() time.Time {
	return time.Now().In(tradelog.IST)
}

func eodCSVPath(t time.Time) string {
	dateStr := t.In(tradelog.IST).Format("2006-01-02")
	return filepath.Join(tradelog.Dir(), "eod", dateStr+".csv")
}

// cutoffTime is the moment on t's day after which the summary may run.
func cutoffTime(t time.Time, hour, minute int) time.Time {
	t = t.In(tradelog.IST)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
