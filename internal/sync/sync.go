package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/strava"
)

// ErrRateLimited is returned when the API keeps refusing requests
var ErrRateLimited = strava.ErrRateLimited

// ActivityStore is the part of the cache Sync writes to
type ActivityStore interface {
	UpsertActivity(ctx context.Context, arg db.UpsertActivityParams) error
	GetLatestActivityDate(ctx context.Context) (sql.NullTime, error)
}

// ActivitySource pages through the athlete's activities
type ActivitySource interface {
	Pages(ctx context.Context, after time.Time) iter.Seq2[strava.Page, error]
	WaitForRateLimit(ctx context.Context) error
}

// Result describes one sync run
type Result struct {
	Since   time.Time // zero for a full sync
	Pages   int
	Fetched int
}

// Service handles syncing activities from Strava to the database
type Service struct {
	store  ActivityStore
	source ActivitySource
}

// NewService creates a new sync service
func NewService(store ActivityStore, source ActivitySource) *Service {
	return &Service{store: store, source: source}
}

// Sync fetches activities started after the newest cached one, or the whole
// history when the cache is empty, and upserts them page by page.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	log := logging.Logger

	since, err := s.latest(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{Since: since}

	if since.IsZero() {
		log.Info().Msg("cache empty, running full sync")
	} else {
		log.Debug().Time("since", since).Msg("running delta sync")
	}

	for page, err := range s.source.Pages(ctx, since) {
		if err != nil {
			return result, fmt.Errorf("fetching page %d: %w", page.Number, err)
		}
		for _, a := range page.Activities {
			if err := s.store.UpsertActivity(ctx, ToParams(a)); err != nil {
				return result, fmt.Errorf("saving activity %d (%s): %w", a.ID, a.Name, err)
			}
		}
		result.Pages++
		result.Fetched += len(page.Activities)

		log.Debug().
			Int("page", page.Number).
			Int("count", len(page.Activities)).
			Int("total", result.Fetched).
			Str("rate_limit", page.RateLimit.UsageString()).
			Msg("saved activity page")

		if page.RateLimit.RecommendedWait > 0 {
			if err := s.source.WaitForRateLimit(ctx); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

func (s *Service) latest(ctx context.Context) (time.Time, error) {
	latest, err := s.store.GetLatestActivityDate(ctx)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !latest.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting latest activity date: %w", err)
	}
	return latest.Time, nil
}
