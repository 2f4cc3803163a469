package sync

import (
	"database/sql"
	"slices"
	"time"

	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/joshdurbin/strava-goals/internal/strava"
)

// ToParams converts a Strava activity to upsert params
func ToParams(a strava.Activity) db.UpsertActivityParams {
	return db.UpsertActivityParams{
		ID:                 a.ID,
		Name:               a.Name,
		Distance:           toNullFloat64(a.Distance),
		MovingTime:         toNullInt64(int64(a.MovingTime)),
		ElapsedTime:        toNullInt64(int64(a.ElapsedTime)),
		TotalElevationGain: toNullFloat64(a.TotalElevationGain),
		Type:               toNullString(a.Type),
		SportType:          toNullString(a.SportType),
		StartDate:          toNullTime(a.StartDate),
		StartDateLocal:     toNullTime(a.StartDateLocal),
		Timezone:           toNullString(a.Timezone),
		Trainer:            a.Trainer,
		GearID:             toNullString(a.GearID),
	}
}

// ActivityFromRow rebuilds the API shape from a cached row
func ActivityFromRow(row db.Activity) strava.Activity {
	return strava.Activity{
		ID:                 row.ID,
		Name:               row.Name,
		Distance:           row.Distance.Float64,
		MovingTime:         int(row.MovingTime.Int64),
		ElapsedTime:        int(row.ElapsedTime.Int64),
		TotalElevationGain: row.TotalElevationGain.Float64,
		Type:               row.Type.String,
		SportType:          row.SportType.String,
		StartDate:          row.StartDate.Time,
		StartDateLocal:     row.StartDateLocal.Time,
		Timezone:           row.Timezone.String,
		Trainer:            row.Trainer,
		GearID:             row.GearID.String,
	}
}

func toNullFloat64(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func toNullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func toNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func toNullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: !v.IsZero()}
}

// Rule reports a replacement activity type for a, or false to leave it alone
type Rule func(a strava.Activity) (string, bool)

// TrainerRule rewrites rides done on a trainer, or on one of gearIDs, to target.
// Only activities typed Ride are touched.
func TrainerRule(target string, gearIDs ...string) Rule {
	gear := slices.Clone(gearIDs)
	return func(a strava.Activity) (string, bool) {
		if a.Type != "Ride" {
			return "", false
		}
		if a.Trainer || (a.GearID != "" && slices.Contains(gear, a.GearID)) {
			return target, true
		}
		return "", false
	}
}

// GearRule rewrites rides on one of gearIDs to target, ignoring the trainer flag
func GearRule(target string, gearIDs ...string) Rule {
	gear := slices.Clone(gearIDs)
	return func(a strava.Activity) (string, bool) {
		if a.Type == "Ride" && a.GearID != "" && slices.Contains(gear, a.GearID) {
			return target, true
		}
		return "", false
	}
}

// Converter maps activities onto aggregation records.
// Rules run in order and the first match decides the type.
type Converter struct {
	Rules []Rule
}

// Type returns the activity type after rules are applied
func (c Converter) Type(a strava.Activity) string {
	for _, rule := range c.Rules {
		if t, ok := rule(a); ok {
			return t
		}
	}
	return a.Type
}

// record builds the record without validating it
func (c Converter) record(a strava.Activity) stats.ActivityRecord {
	start := a.StartTime()
	rec := stats.ActivityRecord{
		Type:              c.Type(a),
		DistanceMeters:    a.Distance,
		MovingTimeSeconds: int64(a.MovingTime),
	}
	if !start.IsZero() {
		rec.Year = start.Year()
		rec.Month = start.Month()
	}
	return rec
}

// Record converts and validates a single activity.
// The year and month come from the local start date.
func (c Converter) Record(a strava.Activity) (stats.ActivityRecord, error) {
	rec := c.record(a)
	return stats.NewActivityRecord(rec.Type, rec.Year, rec.Month, rec.DistanceMeters, rec.MovingTimeSeconds)
}
