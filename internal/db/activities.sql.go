package db

import (
	"context"
	"database/sql"
)

const upsertActivity = `
INSERT INTO activities (
    id, name, distance, moving_time, elapsed_time, total_elevation_gain,
    type, sport_type, start_date, start_date_local, timezone, trainer, gear_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    distance = excluded.distance,
    moving_time = excluded.moving_time,
    elapsed_time = excluded.elapsed_time,
    total_elevation_gain = excluded.total_elevation_gain,
    type = excluded.type,
    sport_type = excluded.sport_type,
    start_date = excluded.start_date,
    start_date_local = excluded.start_date_local,
    timezone = excluded.timezone,
    trainer = excluded.trainer,
    gear_id = excluded.gear_id,
    updated_at = CURRENT_TIMESTAMP
`

type UpsertActivityParams struct {
	ID                 int64
	Name               string
	Distance           sql.NullFloat64
	MovingTime         sql.NullInt64
	ElapsedTime        sql.NullInt64
	TotalElevationGain sql.NullFloat64
	Type               sql.NullString
	SportType          sql.NullString
	StartDate          sql.NullTime
	StartDateLocal     sql.NullTime
	Timezone           sql.NullString
	Trainer            bool
	GearID             sql.NullString
}

func (q *Queries) UpsertActivity(ctx context.Context, arg UpsertActivityParams) error {
	_, err := q.db.ExecContext(ctx, upsertActivity,
		arg.ID,
		arg.Name,
		arg.Distance,
		arg.MovingTime,
		arg.ElapsedTime,
		arg.TotalElevationGain,
		arg.Type,
		arg.SportType,
		arg.StartDate,
		arg.StartDateLocal,
		arg.Timezone,
		arg.Trainer,
		arg.GearID,
	)
	return err
}

const listActivities = `
SELECT id, name, distance, moving_time, elapsed_time, total_elevation_gain,
    type, sport_type, start_date, start_date_local, timezone, trainer, gear_id,
    created_at, updated_at
FROM activities
ORDER BY start_date
`

func (q *Queries) ListActivities(ctx context.Context) ([]Activity, error) {
	rows, err := q.db.QueryContext(ctx, listActivities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Activity
	for rows.Next() {
		var i Activity
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Distance,
			&i.MovingTime,
			&i.ElapsedTime,
			&i.TotalElevationGain,
			&i.Type,
			&i.SportType,
			&i.StartDate,
			&i.StartDateLocal,
			&i.Timezone,
			&i.Trainer,
			&i.GearID,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countActivities = `SELECT COUNT(*) FROM activities`

func (q *Queries) CountActivities(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActivities).Scan(&count)
	return count, err
}

// ORDER BY ... LIMIT 1 rather than MAX() keeps the DATETIME column type, so
// the driver hands back a time value instead of a bare string.
const getLatestActivityDate = `
SELECT start_date FROM activities
WHERE start_date IS NOT NULL
ORDER BY start_date DESC
LIMIT 1
`

func (q *Queries) GetLatestActivityDate(ctx context.Context) (sql.NullTime, error) {
	var startDate sql.NullTime
	err := q.db.QueryRowContext(ctx, getLatestActivityDate).Scan(&startDate)
	return startDate, err
}

const getOldestActivityDate = `
SELECT start_date FROM activities
WHERE start_date IS NOT NULL
ORDER BY start_date ASC
LIMIT 1
`

func (q *Queries) GetOldestActivityDate(ctx context.Context) (sql.NullTime, error) {
	var startDate sql.NullTime
	err := q.db.QueryRowContext(ctx, getOldestActivityDate).Scan(&startDate)
	return startDate, err
}
