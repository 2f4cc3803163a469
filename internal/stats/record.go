package stats

import (
	"math"
	"strings"
	"time"
)

// MaxDistanceMeters is the largest single-activity distance accepted. It keeps
// the millimetre tallies far from int64 overflow.
const MaxDistanceMeters = 1e12

// ActivityRecord is a single exercise activity as seen by the aggregator.
// Build it with NewActivityRecord; Ingest re-validates records built by hand.
type ActivityRecord struct {
	Type              string
	Year              int
	Month             time.Month
	DistanceMeters    float64
	MovingTimeSeconds int64
}

// NewActivityRecord validates the fields and returns the record.
// The activity type is trimmed of surrounding whitespace.
func NewActivityRecord(activityType string, year int, month time.Month, distanceMeters float64, movingTimeSeconds int64) (ActivityRecord, error) {
	rec := ActivityRecord{
		Type:              strings.TrimSpace(activityType),
		Year:              year,
		Month:             month,
		DistanceMeters:    distanceMeters,
		MovingTimeSeconds: movingTimeSeconds,
	}
	if err := rec.Validate(); err != nil {
		return ActivityRecord{}, err
	}
	return rec, nil
}

// Validate returns an *InvalidRecordError describing the first bad field, or nil.
func (r ActivityRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.Type) == "":
		return &InvalidRecordError{Field: "type", Value: r.Type, Reason: "must not be empty"}
	case r.Year <= 0:
		return &InvalidRecordError{Field: "year", Value: r.Year, Reason: "must be positive"}
	case r.Month < time.January || r.Month > time.December:
		return &InvalidRecordError{Field: "month", Value: int(r.Month), Reason: "must be between 1 and 12"}
	case math.IsNaN(r.DistanceMeters) || math.IsInf(r.DistanceMeters, 0):
		return &InvalidRecordError{Field: "distance", Value: r.DistanceMeters, Reason: "must be finite"}
	case r.DistanceMeters < 0:
		return &InvalidRecordError{Field: "distance", Value: r.DistanceMeters, Reason: "must not be negative"}
	case r.DistanceMeters > MaxDistanceMeters:
		return &InvalidRecordError{Field: "distance", Value: r.DistanceMeters, Reason: "too large"}
	case r.MovingTimeSeconds < 0:
		return &InvalidRecordError{Field: "moving_time", Value: r.MovingTimeSeconds, Reason: "must not be negative"}
	}
	return nil
}
