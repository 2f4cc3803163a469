package stats

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewGoalTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		distance  float64
		hours     float64
		wantField string
	}{
		{"valid", 1000, 200, ""},
		{"zero distance", 0, 200, "distance_miles"},
		{"negative distance", -5, 200, "distance_miles"},
		{"NaN distance", math.NaN(), 200, "distance_miles"},
		{"infinite distance", math.Inf(1), 200, "distance_miles"},
		{"zero hours", 1000, 0, "moving_time_hours"},
		{"negative hours", 1000, -1, "moving_time_hours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			goal, err := NewGoalTarget(tt.distance, tt.hours)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if goal.DistanceMiles != tt.distance || goal.MovingTimeHours != tt.hours {
					t.Errorf("unexpected goal %+v", goal)
				}
				return
			}
			var invalid *InvalidGoalError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected *InvalidGoalError, got %v", err)
			}
			if invalid.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, invalid.Field)
			}
		})
	}
}

func TestRemainingDays(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name string
		asOf time.Time
		want int
	}{
		{"new year's eve", time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), 0},
		{"day before", time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC), 1},
		{"jan 1 leap year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 365},
		{"jan 1 common year", time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC), 364},
		{"across DST change", time.Date(2024, 3, 1, 9, 0, 0, 0, ny), 305},
	}
	for _, tt := range tests {
		if got := RemainingDays(tt.asOf); got != tt.want {
			t.Errorf("%s: RemainingDays = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPaceConcreteScenario(t *testing.T) {
	t.Parallel()

	goal, err := NewGoalTarget(100, 20)
	if err != nil {
		t.Fatalf("NewGoalTarget: %v", err)
	}

	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -300)
	got := goal.Pace(40, 8, asOf)

	want := PacingReport{
		AsOf:                     "2023-03-06",
		RemainingDays:            300,
		RemainingWeeks:           42.86,
		RemainingDistanceMiles:   60,
		RemainingMovingTimeHours: 12,
		DistancePerDay:           0.2,
		DistancePerWeek:          1.4,
		TimePerDayMinutes:        2.4,
		TimePerWeekHours:         0.28,
		DistancePercentComplete:  40,
		TimePercentComplete:      40,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Pace mismatch (-want +got):\n%s", diff)
	}
}

func TestPaceNoDaysLeft(t *testing.T) {
	t.Parallel()

	goal, _ := NewGoalTarget(1000, 100)
	got := goal.Pace(250, 30, time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC))

	if got.RemainingDays != 0 {
		t.Errorf("expected 0 remaining days, got %d", got.RemainingDays)
	}
	if got.DistancePerDay != 0 || got.DistancePerWeek != 0 || got.TimePerDayMinutes != 0 || got.TimePerWeekHours != 0 {
		t.Errorf("expected zero pace on Dec 31, got %+v", got)
	}
	if got.RemainingDistanceMiles != 750 {
		t.Errorf("expected 750 miles remaining, got %v", got.RemainingDistanceMiles)
	}
	if got.DistancePercentComplete != 25 {
		t.Errorf("expected 25%% complete, got %v", got.DistancePercentComplete)
	}
}

func TestPaceGoalAlreadyMet(t *testing.T) {
	t.Parallel()

	goal, _ := NewGoalTarget(100, 20)
	got := goal.Pace(127, 25, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	if got.RemainingDistanceMiles != 0 || got.RemainingMovingTimeHours != 0 {
		t.Errorf("expected nothing remaining, got %+v", got)
	}
	if got.DistancePerDay != 0 || got.DistancePerWeek != 0 || got.TimePerDayMinutes != 0 {
		t.Errorf("expected no required pace, got %+v", got)
	}
	if got.DistancePercentComplete != 127 {
		t.Errorf("expected 127%% (unclamped), got %v", got.DistancePercentComplete)
	}
	if got.TimePercentComplete != 125 {
		t.Errorf("expected 125%%, got %v", got.TimePercentComplete)
	}
}

func TestPaceRoundsHalfToEven(t *testing.T) {
	t.Parallel()

	goal, _ := NewGoalTarget(100, 100)
	asOf := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		soFar float64
		want  float64
	}{
		{1.25, 1.2},
		{1.75, 1.8},
		{33.333, 33.3},
	}
	for _, tt := range tests {
		got := goal.Pace(tt.soFar, tt.soFar, asOf)
		if got.DistancePercentComplete != tt.want || got.TimePercentComplete != tt.want {
			t.Errorf("Pace(%v): percent = (%v, %v), want %v", tt.soFar, got.DistancePercentComplete, got.TimePercentComplete, tt.want)
		}
	}
}

func TestPaceIgnoresNegativeProgress(t *testing.T) {
	t.Parallel()

	goal, _ := NewGoalTarget(100, 20)
	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -100)
	got := goal.Pace(-10, math.NaN(), asOf)

	if got.RemainingDistanceMiles != 100 || got.RemainingMovingTimeHours != 20 {
		t.Errorf("expected full goal remaining, got %+v", got)
	}
	if got.DistancePerDay != 1 {
		t.Errorf("expected 1 mile per day, got %v", got.DistancePerDay)
	}
	if got.DistancePercentComplete != 0 || got.TimePercentComplete != 0 {
		t.Errorf("expected 0%% complete, got %+v", got)
	}
}

func TestPaceFromAggregator(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, rec := range []ActivityRecord{
		{Type: "Run", Year: 2024, Month: time.January, DistanceMeters: 80467.2, MovingTimeSeconds: 8 * 3600},
		{Type: "Ride", Year: 2023, Month: time.January, DistanceMeters: 160934.4, MovingTimeSeconds: 6 * 3600},
	} {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	goal, _ := NewGoalTarget(500, 80)
	miles, hours := agg.YearToDate(2024)
	got := goal.Pace(miles, hours, time.Date(2024, 12, 21, 0, 0, 0, 0, time.UTC))

	if got.RemainingDays != 10 {
		t.Fatalf("expected 10 remaining days, got %d", got.RemainingDays)
	}
	if got.DistancePercentComplete != 10 {
		t.Errorf("expected 10%% of distance, got %v", got.DistancePercentComplete)
	}
	if got.TimePercentComplete != 10 {
		t.Errorf("expected 10%% of time, got %v", got.TimePercentComplete)
	}
	if got.DistancePerDay != 45 {
		t.Errorf("expected 45 miles per day, got %v", got.DistancePerDay)
	}
	if got.TimePerDayMinutes != 432 {
		t.Errorf("expected 432 minutes per day, got %v", got.TimePerDayMinutes)
	}
}
