package workers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/joshdurbin/strava-goals/internal/auth"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/strava"
	syncsvc "github.com/joshdurbin/strava-goals/internal/sync"
)

// Tokens closer than this to expiry are refreshed
const refreshThreshold = 10 * time.Minute

// TokenRefresher keeps auth tokens up to date
type TokenRefresher struct {
	storage  *auth.Storage
	interval time.Duration

	// tokenURL overrides the Strava token endpoint (tests)
	tokenURL string
}

// NewTokenRefresher creates a new token refresher worker
func NewTokenRefresher(storage *auth.Storage, interval time.Duration) *TokenRefresher {
	return &TokenRefresher{
		storage:  storage,
		interval: interval,
	}
}

// Run checks the token immediately and then on every tick until ctx is done
func (t *TokenRefresher) Run(ctx context.Context) {
	log := logging.Logger
	log.Info().Dur("interval", t.interval).Msg("token refresher started")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.checkAndRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("token refresher stopped")
			return
		case <-ticker.C:
			t.checkAndRefresh(ctx)
		}
	}
}

// checkAndRefresh reports whether a refresh happened
func (t *TokenRefresher) checkAndRefresh(ctx context.Context) bool {
	log := logging.Logger

	token, err := t.storage.LoadToken(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load token for refresh check")
		return false
	}

	expiresIn := time.Until(token.Expiry)
	if expiresIn >= refreshThreshold {
		log.Debug().Dur("expires_in", expiresIn.Round(time.Second)).Msg("token still valid")
		return false
	}

	log.Info().Dur("expires_in", expiresIn.Round(time.Second)).Msg("token expiring soon, refreshing")

	creds, err := t.storage.LoadCredentials(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load client credentials for refresh")
		return false
	}
	if t.tokenURL != "" {
		creds.TokenURL = t.tokenURL
	}

	fresh, err := auth.Refresh(ctx, creds, token.RefreshToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh token")
		return false
	}
	if err := t.storage.SaveToken(ctx, fresh); err != nil {
		log.Error().Err(err).Msg("failed to save refreshed token")
		return false
	}

	log.Info().Time("new_expires_at", fresh.Expiry).Msg("token refreshed successfully")
	return true
}

// ActivitySyncer periodically pulls new activities into the cache
type ActivitySyncer struct {
	store    syncsvc.ActivityStore
	storage  *auth.Storage
	interval time.Duration

	newClient func(accessToken string) *strava.Client
	onSynced  func(ctx context.Context, result syncsvc.Result)
}

// NewActivitySyncer creates a new activity sync worker
func NewActivitySyncer(store syncsvc.ActivityStore, storage *auth.Storage, interval time.Duration, retry strava.RetryConfig) *ActivitySyncer {
	return &ActivitySyncer{
		store:    store,
		storage:  storage,
		interval: interval,
		newClient: func(accessToken string) *strava.Client {
			return strava.NewClient(accessToken).WithRetryConfig(retry.MaxRetries, retry.MinWait, retry.MaxWait)
		},
	}
}

// OnSynced registers a hook run after every sync that fetched something
func (a *ActivitySyncer) OnSynced(fn func(ctx context.Context, result syncsvc.Result)) *ActivitySyncer {
	a.onSynced = fn
	return a
}

// Run syncs immediately and then on every tick until ctx is done
func (a *ActivitySyncer) Run(ctx context.Context) {
	log := logging.Logger
	log.Info().Dur("interval", a.interval).Msg("activity syncer started")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.syncLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("activity syncer stopped")
			return
		case <-ticker.C:
			a.syncLogged(ctx)
		}
	}
}

func (a *ActivitySyncer) syncLogged(ctx context.Context) {
	if _, err := a.SyncOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logging.Logger.Info().Msg("activity sync interrupted")
			return
		}
		logging.Logger.Error().Err(err).Msg("activity sync failed")
	}
}

// SyncOnce runs a single delta sync and fires the OnSynced hook when
// anything new arrived
func (a *ActivitySyncer) SyncOnce(ctx context.Context) (syncsvc.Result, error) {
	log := logging.Logger

	accessToken, err := a.storage.AccessToken(ctx)
	if err != nil {
		return syncsvc.Result{}, err
	}

	client := a.newClient(accessToken)
	if err := client.WaitForRateLimit(ctx); err != nil {
		return syncsvc.Result{}, err
	}

	result, err := syncsvc.NewService(a.store, client).Sync(ctx)
	rl := client.GetRateLimit()
	if err != nil {
		log.Warn().
			Int("fetched", result.Fetched).
			Str("usage", rl.UsageString()).
			Msg("sync stopped early")
		return result, err
	}

	log.Info().
		Int("fetched", result.Fetched).
		Int("pages", result.Pages).
		Str("usage", rl.UsageString()).
		Msg("activity sync completed")

	if result.Fetched > 0 && a.onSynced != nil {
		a.onSynced(ctx, result)
	}
	return result, nil
}

// StatsQuerier is what LogDatabaseStats reads
type StatsQuerier interface {
	CountActivities(ctx context.Context) (int64, error)
	GetLatestActivityDate(ctx context.Context) (sql.NullTime, error)
	GetOldestActivityDate(ctx context.Context) (sql.NullTime, error)
}

// LogDatabaseStats logs current database statistics
func LogDatabaseStats(ctx context.Context, queries StatsQuerier) {
	log := logging.Logger

	count, err := queries.CountActivities(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to count activities")
		return
	}

	if count == 0 {
		log.Info().Int64("total_activities", 0).Msg("database statistics")
		return
	}

	newest, _ := queries.GetLatestActivityDate(ctx)
	oldest, _ := queries.GetOldestActivityDate(ctx)

	log.Info().
		Int64("total_activities", count).
		Str("newest_activity", formatDate(newest)).
		Str("oldest_activity", formatDate(oldest)).
		Msg("database statistics")
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return "unknown"
	}
	return t.Time.Format(time.RFC3339)
}
