package stats

import (
	"math"
	"time"
)

// GoalTarget is an annual distance and moving-time goal
type GoalTarget struct {
	DistanceMiles   float64 `json:"distance_miles"`
	MovingTimeHours float64 `json:"moving_time_hours"`
}

// NewGoalTarget returns an *InvalidGoalError unless both values are positive and finite
func NewGoalTarget(distanceMiles, movingTimeHours float64) (GoalTarget, error) {
	if !(distanceMiles > 0) || math.IsInf(distanceMiles, 0) {
		return GoalTarget{}, &InvalidGoalError{Field: "distance_miles", Value: distanceMiles}
	}
	if !(movingTimeHours > 0) || math.IsInf(movingTimeHours, 0) {
		return GoalTarget{}, &InvalidGoalError{Field: "moving_time_hours", Value: movingTimeHours}
	}
	return GoalTarget{DistanceMiles: distanceMiles, MovingTimeHours: movingTimeHours}, nil
}

// PacingReport is the pace needed from asOf to Dec 31 to meet a goal
type PacingReport struct {
	AsOf                     string  `json:"as_of"`
	RemainingDays            int     `json:"remaining_days"`
	RemainingWeeks           float64 `json:"remaining_weeks"`
	RemainingDistanceMiles   float64 `json:"remaining_distance_miles"`
	RemainingMovingTimeHours float64 `json:"remaining_moving_time_hours"`
	DistancePerDay           float64 `json:"distance_per_day"`
	DistancePerWeek          float64 `json:"distance_per_week"`
	TimePerDayMinutes        float64 `json:"time_per_day_minutes"`
	TimePerWeekHours         float64 `json:"time_per_week_hours"`
	DistancePercentComplete  float64 `json:"distance_percent_complete"`
	TimePercentComplete      float64 `json:"time_percent_complete"`
}

// RemainingDays counts whole calendar days from asOf to Dec 31 of the same
// year, in asOf's location. Dec 31 itself gives 0.
func RemainingDays(asOf time.Time) int {
	loc := asOf.Location()
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, loc)
	yearEnd := time.Date(asOf.Year(), time.December, 31, 0, 0, 0, 0, loc)
	// Round absorbs DST shifts between the two midnights.
	return int(math.Round(yearEnd.Sub(day).Hours() / 24))
}

// Pace computes the pacing report for the given year-to-date progress.
// Negative or non-finite progress counts as zero. With no days left every
// per-day and per-week figure is zero.
func (g GoalTarget) Pace(distanceSoFarMiles, hoursSoFar float64, asOf time.Time) PacingReport {
	distanceSoFarMiles = nonNegative(distanceSoFarMiles)
	hoursSoFar = nonNegative(hoursSoFar)

	days := RemainingDays(asOf)
	remainingDistance := math.Max(0, g.DistanceMiles-distanceSoFarMiles)
	remainingTime := math.Max(0, g.MovingTimeHours-hoursSoFar)

	report := PacingReport{
		AsOf:                     asOf.Format("2006-01-02"),
		RemainingDays:            max(days, 0),
		RemainingDistanceMiles:   remainingDistance,
		RemainingMovingTimeHours: remainingTime,
		DistancePercentComplete:  roundHalfEven(100*distanceSoFarMiles/g.DistanceMiles, 1),
		TimePercentComplete:      roundHalfEven(100*hoursSoFar/g.MovingTimeHours, 1),
	}

	if days <= 0 {
		return report
	}

	weeks := float64(days) / 7
	report.RemainingWeeks = roundHalfEven(weeks, 2)
	report.DistancePerDay = roundHalfEven(remainingDistance/float64(days), 2)
	report.DistancePerWeek = roundHalfEven(remainingDistance/weeks, 2)
	report.TimePerDayMinutes = roundHalfEven(60*remainingTime/float64(days), 2)
	report.TimePerWeekHours = roundHalfEven(remainingTime/weeks, 2)
	return report
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
