package sync

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/joshdurbin/strava-goals/internal/strava"
)

// ActivityLister reads every cached activity
type ActivityLister interface {
	ListActivities(ctx context.Context) ([]db.Activity, error)
}

// Summary counts what a fold applied and skipped
type Summary struct {
	Ingested int
	Skipped  int
}

// Stream folds activities into agg. Invalid activities are logged and
// skipped; the first source error stops the fold and is returned.
func Stream(agg *stats.Aggregator, activities iter.Seq2[strava.Activity, error], conv Converter) (Summary, error) {
	var (
		summary   Summary
		sourceErr error
	)

	records := func(yield func(stats.ActivityRecord) bool) {
		for a, err := range activities {
			if err != nil {
				sourceErr = err
				return
			}
			if !yield(conv.record(a)) {
				return
			}
		}
	}

	applied, err := agg.IngestAll(records, func(rec stats.ActivityRecord, err error) error {
		var invalid *stats.InvalidRecordError
		if !errors.As(err, &invalid) {
			return err
		}
		summary.Skipped++
		logging.Logger.Warn().
			Str("field", invalid.Field).
			Interface("value", invalid.Value).
			Str("type", rec.Type).
			Int("year", rec.Year).
			Msg("skipping invalid activity")
		return nil
	})
	summary.Ingested = applied
	if err != nil {
		return summary, err
	}
	if sourceErr != nil {
		return summary, fmt.Errorf("reading activities: %w", sourceErr)
	}
	return summary, nil
}

// BuildAggregator rebuilds a fresh aggregator from the activity cache
func BuildAggregator(ctx context.Context, lister ActivityLister, conv Converter) (*stats.Aggregator, Summary, error) {
	rows, err := lister.ListActivities(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("listing activities: %w", err)
	}

	agg := stats.NewAggregator()
	summary, err := Stream(agg, rowActivities(rows), conv)
	if err != nil {
		return nil, summary, err
	}

	logging.Logger.Debug().
		Int("ingested", summary.Ingested).
		Int("skipped", summary.Skipped).
		Msg("built aggregator from cache")
	return agg, summary, nil
}

func rowActivities(rows []db.Activity) iter.Seq2[strava.Activity, error] {
	return func(yield func(strava.Activity, error) bool) {
		for _, row := range rows {
			if !yield(ActivityFromRow(row), nil) {
				return
			}
		}
	}
}
