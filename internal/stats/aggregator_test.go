package stats

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func mustRecord(t *testing.T, activityType string, year int, month time.Month, meters float64, seconds int64) ActivityRecord {
	t.Helper()
	rec, err := NewActivityRecord(activityType, year, month, meters, seconds)
	if err != nil {
		t.Fatalf("NewActivityRecord(%q, %d, %d, %v, %d): %v", activityType, year, month, meters, seconds, err)
	}
	return rec
}

func randomRecords(n int, seed uint64) []ActivityRecord {
	r := rand.New(rand.NewPCG(seed, seed+1))
	types := []string{"Run", "Ride", "Swim", "Walk", "VirtualRide"}
	recs := make([]ActivityRecord, 0, n)
	for range n {
		recs = append(recs, ActivityRecord{
			Type:              types[r.IntN(len(types))],
			Year:              2018 + r.IntN(7),
			Month:             time.Month(1 + r.IntN(12)),
			DistanceMeters:    r.Float64() * 50000,
			MovingTimeSeconds: r.Int64N(4 * 3600),
		})
	}
	return recs
}

// checkYearSums asserts that per-(year, type) buckets add up to the per-year bucket
func checkYearSums(t *testing.T, s Snapshot) {
	t.Helper()
	for year, yb := range s.ByYear {
		var count, seconds, mm int64
		for key, b := range s.ByYearType {
			if key.Year != year {
				continue
			}
			count += b.Count
			seconds += b.MovingTimeSeconds
			mm += b.DistanceMillimeters
		}
		if count != yb.Count {
			t.Errorf("year %d: type counts sum to %d, year bucket has %d", year, count, yb.Count)
		}
		if seconds != yb.MovingTimeSeconds {
			t.Errorf("year %d: type moving time sums to %d, year bucket has %d", year, seconds, yb.MovingTimeSeconds)
		}
		if mm != yb.DistanceMillimeters {
			t.Errorf("year %d: type distance sums to %d mm, year bucket has %d mm", year, mm, yb.DistanceMillimeters)
		}
	}
}

func TestAggregatorConcreteScenario(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, rec := range []ActivityRecord{
		mustRecord(t, "Run", 2023, time.January, 1609.34, 1800),
		mustRecord(t, "Ride", 2023, time.February, 16093.4, 3600),
		mustRecord(t, "Run", 2024, time.January, 1609.34, 1800),
	} {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	// 0.000621371 is slightly below 1/1609.344, so whole-mile inputs land
	// just under the integer and truncate down.
	if got := agg.DistanceMilesByType("Run"); got != 1 {
		t.Errorf("DistanceMilesByType(Run) = %d, want 1", got)
	}
	if got := agg.DistanceMilesByYear(2023); got != 10 {
		t.Errorf("DistanceMilesByYear(2023) = %d, want 10", got)
	}
	if got := agg.DistanceMiles(2023, "Ride"); got != 9 {
		t.Errorf("DistanceMiles(2023, Ride) = %d, want 9", got)
	}

	years := agg.KnownYears()
	slices.Sort(years)
	if diff := cmp.Diff([]int{2023, 2024}, years); diff != "" {
		t.Errorf("KnownYears mismatch (-want +got):\n%s", diff)
	}

	types := agg.KnownTypes()
	slices.Sort(types)
	if diff := cmp.Diff([]string{"Ride", "Run"}, types); diff != "" {
		t.Errorf("KnownTypes mismatch (-want +got):\n%s", diff)
	}

	if got := agg.CountByType("Run"); got != 2 {
		t.Errorf("CountByType(Run) = %d, want 2", got)
	}
	if got := agg.MovingTimeHoursByYear(2023); got != 1 {
		t.Errorf("MovingTimeHoursByYear(2023) = %d, want 1", got)
	}
	if got := agg.MovingTimeHoursByType("Run"); got != 1 {
		t.Errorf("MovingTimeHoursByType(Run) = %d, want 1", got)
	}
	if got := agg.MovingTimeHours(2024, "Run"); got != 0 {
		t.Errorf("MovingTimeHours(2024, Run) = %d, want 0", got)
	}
}

func TestAggregatorTruncatesAboveBoundary(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, rec := range []ActivityRecord{
		mustRecord(t, "Run", 2023, time.January, 1610, 1800),
		mustRecord(t, "Ride", 2023, time.February, 16100, 3600),
		mustRecord(t, "Run", 2024, time.January, 1610, 1800),
	} {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"run total", agg.DistanceMilesByType("Run"), 2},
		{"2023 total", agg.DistanceMilesByYear(2023), 11},
		{"2023 rides", agg.DistanceMiles(2023, "Ride"), 10},
		{"2024 runs", agg.DistanceMiles(2024, "Run"), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestAggregatorUnknownKeysAreZero(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	if err := agg.Ingest(mustRecord(t, "Run", 2023, time.March, 5000, 1500)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	zero := Bucket{}
	if diff := cmp.Diff(zero, agg.TypeBucket("Kayaking")); diff != "" {
		t.Errorf("TypeBucket(Kayaking) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(zero, agg.YearBucket(1999)); diff != "" {
		t.Errorf("YearBucket(1999) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(zero, agg.YearTypeBucket(2023, "Ride")); diff != "" {
		t.Errorf("YearTypeBucket(2023, Ride) (-want +got):\n%s", diff)
	}
	if agg.DistanceMilesByType("Kayaking") != 0 || agg.CountByYear(1999) != 0 || agg.MovingTimeHours(2024, "Run") != 0 {
		t.Error("expected zero for unknown keys")
	}

	empty := NewAggregator()
	if len(empty.KnownYears()) != 0 || len(empty.KnownTypes()) != 0 {
		t.Error("expected no known years or types on an empty aggregator")
	}
}

func TestAggregatorRejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rec   ActivityRecord
		field string
	}{
		{"empty type", ActivityRecord{Type: "", Year: 2023, Month: time.May, DistanceMeters: 100}, "type"},
		{"blank type", ActivityRecord{Type: "   ", Year: 2023, Month: time.May, DistanceMeters: 100}, "type"},
		{"negative distance", ActivityRecord{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: -1}, "distance"},
		{"NaN distance", ActivityRecord{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: math.NaN()}, "distance"},
		{"negative time", ActivityRecord{Type: "Run", Year: 2023, Month: time.May, MovingTimeSeconds: -60}, "moving_time"},
		{"month zero", ActivityRecord{Type: "Run", Year: 2023, Month: 0}, "month"},
		{"month 13", ActivityRecord{Type: "Run", Year: 2023, Month: 13}, "month"},
		{"year zero", ActivityRecord{Type: "Run", Year: 0, Month: time.May}, "year"},
		{"distance beyond ceiling", ActivityRecord{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: 1e17}, "distance"},
		{"infinite distance", ActivityRecord{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: math.Inf(1)}, "distance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			agg := NewAggregator()
			for _, rec := range randomRecords(25, 7) {
				if err := agg.Ingest(rec); err != nil {
					t.Fatalf("Ingest: %v", err)
				}
			}
			before := agg.Snapshot()

			err := agg.Ingest(tt.rec)
			var invalid *InvalidRecordError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected *InvalidRecordError, got %v", err)
			}
			if invalid.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, invalid.Field)
			}

			if diff := cmp.Diff(before, agg.Snapshot()); diff != "" {
				t.Errorf("aggregates changed after rejected record (-before +after):\n%s", diff)
			}
		})
	}
}

func TestAggregatorExactYearSums(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, rec := range []ActivityRecord{
		{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: 0.1},
		{Type: "Ride", Year: 2023, Month: time.May, DistanceMeters: 0.2},
	} {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	snap := agg.Snapshot()
	run := snap.ByYearType[YearType{Year: 2023, Type: "Run"}]
	ride := snap.ByYearType[YearType{Year: 2023, Type: "Ride"}]
	year := agg.YearBucket(2023)

	if got := run.DistanceMillimeters + ride.DistanceMillimeters; got != year.DistanceMillimeters {
		t.Errorf("type buckets sum to %d mm, year bucket has %d mm", got, year.DistanceMillimeters)
	}
	if year.DistanceMillimeters != 300 {
		t.Errorf("expected 300 mm for 2023, got %d", year.DistanceMillimeters)
	}
	if year.DistanceMeters != 0.3 {
		t.Errorf("expected 0.3 m for 2023, got %v", year.DistanceMeters)
	}
	checkYearSums(t, snap)
}

func TestAggregatorRejectsOverflow(t *testing.T) {
	t.Parallel()

	t.Run("moving time", func(t *testing.T) {
		t.Parallel()

		agg := NewAggregator()
		if err := agg.Ingest(ActivityRecord{Type: "Run", Year: 2023, Month: time.May, DistanceMeters: 1000, MovingTimeSeconds: math.MaxInt64 - 10}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		before := agg.Snapshot()

		err := agg.Ingest(ActivityRecord{Type: "Run", Year: 2023, Month: time.June, DistanceMeters: 1000, MovingTimeSeconds: 100})
		var invalid *InvalidRecordError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidRecordError, got %v", err)
		}
		if diff := cmp.Diff(before, agg.Snapshot()); diff != "" {
			t.Errorf("aggregates changed after rejected record (-before +after):\n%s", diff)
		}
		if agg.YearBucket(2023).MovingTimeSeconds < 0 {
			t.Error("moving time wrapped negative")
		}
	})

	t.Run("distance", func(t *testing.T) {
		t.Parallel()

		// Each record adds 1e15 mm, so 9223 of them fit under MaxInt64 and the next does not
		agg := NewAggregator()
		for i := range 9223 {
			rec := ActivityRecord{Type: "Ride", Year: 2023, Month: time.Month(1 + i%12), DistanceMeters: MaxDistanceMeters}
			if err := agg.Ingest(rec); err != nil {
				t.Fatalf("Ingest #%d: %v", i, err)
			}
		}
		before := agg.Snapshot()

		err := agg.Ingest(ActivityRecord{Type: "Ride", Year: 2023, Month: time.December, DistanceMeters: MaxDistanceMeters})
		var invalid *InvalidRecordError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidRecordError, got %v", err)
		}
		if diff := cmp.Diff(before, agg.Snapshot()); diff != "" {
			t.Errorf("aggregates changed after rejected record (-before +after):\n%s", diff)
		}
		if b := agg.YearBucket(2023); b.DistanceMillimeters < 0 || b.DistanceMeters < 0 {
			t.Errorf("distance wrapped negative: %+v", b)
		}

		// The Ride type tally is full across years; other types are not
		if err := agg.Ingest(ActivityRecord{Type: "Ride", Year: 2024, Month: time.January, DistanceMeters: 1000}); err == nil {
			t.Error("expected the per-type tally to reject further Ride distance")
		}
		if err := agg.Ingest(ActivityRecord{Type: "Run", Year: 2024, Month: time.January, DistanceMeters: 1000}); err != nil {
			t.Errorf("unexpected error for an unrelated tally: %v", err)
		}
	})
}

func TestNewActivityRecord(t *testing.T) {
	t.Parallel()

	rec, err := NewActivityRecord("  Run ", 2024, time.June, 5000, 1500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != "Run" {
		t.Errorf("expected trimmed type 'Run', got %q", rec.Type)
	}

	if _, err := NewActivityRecord("Run", 2024, time.June, -5, 1500); err == nil {
		t.Error("expected error for negative distance")
	}
}

func TestAggregatorCrossBucketInvariant(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for i, rec := range randomRecords(500, 42) {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		// The invariant must hold after every ingestion, not only at the end
		if i%50 == 0 {
			checkYearSums(t, agg.Snapshot())
		}
	}
	snap := agg.Snapshot()
	checkYearSums(t, snap)

	for year, yb := range snap.ByYear {
		var typeCount int64
		for _, activityType := range agg.KnownTypes() {
			typeCount += agg.Count(year, activityType)
		}
		if typeCount != yb.Count {
			t.Errorf("year %d: Count over types = %d, CountByYear = %d", year, typeCount, yb.Count)
		}
	}
}

func TestAggregatorOrderIndependent(t *testing.T) {
	t.Parallel()

	recs := randomRecords(300, 99)

	forward := NewAggregator()
	for _, rec := range recs {
		if err := forward.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	shuffled := slices.Clone(recs)
	r := rand.New(rand.NewPCG(3, 4))
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	backward := NewAggregator()
	for _, rec := range shuffled {
		if err := backward.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	if diff := cmp.Diff(forward.Snapshot(), backward.Snapshot()); diff != "" {
		t.Errorf("aggregates depend on ingestion order (-forward +shuffled):\n%s", diff)
	}
}

func TestAggregatorIngestAll(t *testing.T) {
	t.Parallel()

	recs := []ActivityRecord{
		{Type: "Run", Year: 2024, Month: time.January, DistanceMeters: 5000, MovingTimeSeconds: 1500},
		{Type: "", Year: 2024, Month: time.January, DistanceMeters: 5000},
		{Type: "Ride", Year: 2024, Month: time.February, DistanceMeters: 20000, MovingTimeSeconds: 3600},
	}

	t.Run("skip invalid", func(t *testing.T) {
		t.Parallel()
		agg := NewAggregator()
		var rejected int
		applied, err := agg.IngestAll(slices.Values(recs), func(ActivityRecord, error) error {
			rejected++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if applied != 2 || rejected != 1 {
			t.Errorf("expected 2 applied and 1 rejected, got %d and %d", applied, rejected)
		}
		if agg.CountByYear(2024) != 2 {
			t.Errorf("expected 2 activities in 2024, got %d", agg.CountByYear(2024))
		}
	})

	t.Run("abort on invalid", func(t *testing.T) {
		t.Parallel()
		agg := NewAggregator()
		applied, err := agg.IngestAll(slices.Values(recs), nil)
		var invalid *InvalidRecordError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidRecordError, got %v", err)
		}
		if applied != 1 {
			t.Errorf("expected 1 applied before abort, got %d", applied)
		}
		if agg.CountByType("Ride") != 0 {
			t.Error("records after the abort should not be applied")
		}
	})
}

func TestAggregatorYearToDate(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, rec := range []ActivityRecord{
		{Type: "Run", Year: 2024, Month: time.January, DistanceMeters: 10000, MovingTimeSeconds: 3600},
		{Type: "Ride", Year: 2024, Month: time.March, DistanceMeters: 40000, MovingTimeSeconds: 7200},
		{Type: "Run", Year: 2023, Month: time.March, DistanceMeters: 8000, MovingTimeSeconds: 2400},
	} {
		if err := agg.Ingest(rec); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	tests := []struct {
		name      string
		types     []string
		wantMiles float64
		wantHours float64
	}{
		{"all types", nil, 50000 * MilesPerMeter, 3},
		{"runs only", []string{"Run"}, 10000 * MilesPerMeter, 1},
		{"duplicate types counted once", []string{"Run", "Run"}, 10000 * MilesPerMeter, 1},
		{"unknown type", []string{"Swim"}, 0, 0},
	}
	for _, tt := range tests {
		miles, hours := agg.YearToDate(2024, tt.types...)
		if math.Abs(miles-tt.wantMiles) > 1e-9 || math.Abs(hours-tt.wantHours) > 1e-9 {
			t.Errorf("%s: YearToDate = (%v, %v), want (%v, %v)", tt.name, miles, hours, tt.wantMiles, tt.wantHours)
		}
	}
}

func TestAggregatorConcurrentIngest(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	recs := randomRecords(400, 11)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(part []ActivityRecord) {
			defer wg.Done()
			for _, rec := range part {
				if err := agg.Ingest(rec); err != nil {
					t.Errorf("Ingest: %v", err)
				}
			}
		}(recs[w*100 : (w+1)*100])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 20 {
			checkYearSums(t, agg.Snapshot())
		}
	}()

	wg.Wait()
	<-done

	var total int64
	for _, b := range agg.Snapshot().ByType {
		total += b.Count
	}
	if total != int64(len(recs)) {
		t.Errorf("expected %d activities, got %d", len(recs), total)
	}
}
