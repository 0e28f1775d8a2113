package metrics

import (
	"fmt"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// DateFormat is the calendar key for daily metric rows.
const DateFormat = "2006-01-02"

// Aggregator folds completed cycles into per-day rollups.
type Aggregator struct {
	store store.Store
}

// NewAggregator builds an Aggregator over the store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Record upserts the daily metric row for the given day: one more failure,
// one more analyzed failure, the cycle's recommendation count, and the
// analysis confidence folded into the running learning score. The store's
// upsert is atomic, so concurrent cycles on the same day do not lose
// increments.
func (ag *Aggregator) Record(day time.Time, a *failure.FailureAnalysis, recCount int) error {
	date := day.UTC().Format(DateFormat)
	delta := store.MetricDelta{
		Failures:        1,
		Analyzed:        1,
		Recommendations: recCount,
		Confidence:      a.ConfidenceScore,
	}
	if err := ag.store.UpsertDailyMetric(date, delta); err != nil {
		return fmt.Errorf("record daily metric for %s: %w", date, err)
	}
	return nil
}

// Progress returns the rollups from `since` onward, oldest first, for the
// dashboard's learning-progress view.
func (ag *Aggregator) Progress(since time.Time) ([]*failure.DailyMetric, error) {
	return ag.store.ListDailyMetrics(since.UTC().Format(DateFormat))
}
