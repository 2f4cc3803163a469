package db

import (
	"database/sql"
	"time"
)

type Activity struct {
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
	CreatedAt          sql.NullTime
	UpdatedAt          sql.NullTime
}

type AuthConfig struct {
	ID           int64
	ClientID     string
	ClientSecret string
	AccessToken  sql.NullString
	RefreshToken sql.NullString
	ExpiresAt    sql.NullInt64
	CreatedAt    sql.NullTime
	UpdatedAt    sql.NullTime
}

// StartTime returns the local start time when known, else the UTC start time
func (a Activity) StartTime() time.Time {
	if a.StartDateLocal.Valid {
		return a.StartDateLocal.Time
	}
	if a.StartDate.Valid {
		return a.StartDate.Time
	}
	return time.Time{}
}
