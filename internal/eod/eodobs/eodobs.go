package eodobs

import (
	"context"
	"sync"
	"time"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/trace"
	"fno-desk/internal/tradelog"
)

// Summary outcomes recorded on spans and log lines.
const (
	outcomeWritten = "written"
	outcomeEmpty   = "empty"
	outcomeFailed  = "failed"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
	cutoff     string

	mu        sync.Mutex
	firedDay  string
	clockFunc func() time.Time
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

// Wrap traces summarizer. cutoff is the HH:MM IST time the summary becomes
// due and is attached to every span.
func Wrap(summarizer interfaces.EodSummarizer, cutoff string) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
		cutoff:     cutoff,
		clockFunc:  time.Now,
	}
}

func istDay(t time.Time) string {
	return t.In(tradelog.IST).Format("2006-01-02")
}

func outcome(csvPath string, err error) string {
	switch {
	case err != nil:
		return outcomeFailed
	case csvPath == "":
		return outcomeEmpty
	default:
		return outcomeWritten
	}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeDay")
	defer span.End()

	day := istDay(t)
	trace.Annotate(ctx, "eod.day", day, "eod.cutoff", oes.cutoff)

	csvPath, err := oes.summarizer.SummarizeDay(t)
	oes.report(ctx, day, csvPath, err)
	return csvPath, err
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeToday")
	defer span.End()

	day := istDay(oes.clockFunc())
	trace.Annotate(ctx, "eod.day", day, "eod.cutoff", oes.cutoff)

	csvPath, err := oes.summarizer.SummarizeToday()
	oes.report(ctx, day, csvPath, err)
	return csvPath, err
}

// report logs the result of a summary run. A day with no placed orders
// writes no CSV and is reported apart from failures.
func (oes *observableEodSummarizer) report(ctx context.Context, day, csvPath string, err error) {
	o := outcome(csvPath, err)
	trace.Annotate(ctx, "eod.outcome", o, "eod.csv_path", csvPath)

	switch o {
	case outcomeFailed:
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "day", day)
	case outcomeEmpty:
		logger.InfoSkip(ctx, 2, "No placed orders, EOD CSV not written", "day", day)
	default:
		logger.InfoSkip(ctx, 2, "EOD CSV written", "day", day, "csv_path", csvPath)
	}
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	shouldRun, csvPath := oes.summarizer.ShouldRunNow()
	day := istDay(oes.clockFunc())
	trace.Annotate(ctx, "eod.day", day, "eod.cutoff", oes.cutoff, "eod.fired", shouldRun)

	if shouldRun && oes.firstFire(day) {
		logger.InfoSkip(ctx, 1, "EOD cutoff reached",
			"day", day,
			"cutoff", oes.cutoff,
			"csv_path", csvPath,
		)
	} else {
		logger.DebugSkip(ctx, 1, "EOD check",
			"should_run", shouldRun,
			"cutoff", oes.cutoff,
		)
	}
	return shouldRun, csvPath
}

// firstFire reports whether day is seeing its first due check.
func (oes *observableEodSummarizer) firstFire(day string) bool {
	oes.mu.Lock()
	defer oes.mu.Unlock()
	if oes.firedDay == day {
		return false
	}
	oes.firedDay = day
	return true
}
