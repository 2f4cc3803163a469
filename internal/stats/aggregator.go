package stats

import (
	"iter"
	"math"
	"strings"
	"sync"
)

// Bucket is a tally of activities for one slice of the history.
// DistanceMillimeters is the exact tally: the per-type buckets of a year sum
// to that year's bucket with ==. DistanceMeters is the same value as a float
// for display and may differ from a float sum in the last bit.
type Bucket struct {
	Count               int64   `json:"count"`
	DistanceMillimeters int64   `json:"distance_millimeters"`
	DistanceMeters      float64 `json:"distance_meters"`
	MovingTimeSeconds   int64   `json:"moving_time_seconds"`
}

// Miles returns the bucket distance in whole miles, truncated toward zero
func (b Bucket) Miles() int64 {
	return truncMiles(b.DistanceMeters)
}

// Hours returns the bucket moving time in whole hours, truncated toward zero
func (b Bucket) Hours() int64 {
	return truncHours(b.MovingTimeSeconds)
}

// YearType keys the joint year x activity type dimension
type YearType struct {
	Year int
	Type string
}

// tally is the internal accumulator. Distance is kept in millimetres so
// per-type sums equal per-year sums exactly, whatever the ingestion order.
type tally struct {
	count         int64
	distanceMM    int64
	movingSeconds int64
}

// fits reports whether adding the values keeps every field within int64
func (t *tally) fits(distanceMM, movingSeconds int64) bool {
	if t == nil {
		return true
	}
	return t.count < math.MaxInt64 &&
		t.distanceMM <= math.MaxInt64-distanceMM &&
		t.movingSeconds <= math.MaxInt64-movingSeconds
}

func (t *tally) add(distanceMM, movingSeconds int64) {
	t.count++
	t.distanceMM += distanceMM
	t.movingSeconds += movingSeconds
}

func (t *tally) bucket() Bucket {
	if t == nil {
		return Bucket{}
	}
	return Bucket{
		Count:               t.count,
		DistanceMillimeters: t.distanceMM,
		DistanceMeters:      float64(t.distanceMM) / 1000,
		MovingTimeSeconds:   t.movingSeconds,
	}
}

// Aggregator folds activity records into tallies by type, by year and by
// year x type. It is safe for concurrent use; the three updates for one
// record are applied under a single lock.
type Aggregator struct {
	mu         sync.RWMutex
	byType     map[string]*tally
	byYear     map[int]*tally
	byYearType map[YearType]*tally
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		byType:     make(map[string]*tally),
		byYear:     make(map[int]*tally),
		byYearType: make(map[YearType]*tally),
	}
}

// Ingest tallies one record into all three dimensions. An invalid record
// returns an *InvalidRecordError and leaves every tally untouched.
func (a *Aggregator) Ingest(rec ActivityRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	activityType := strings.TrimSpace(rec.Type)
	distanceMM := millimeters(rec.DistanceMeters)

	a.mu.Lock()
	defer a.mu.Unlock()

	yt := YearType{Year: rec.Year, Type: activityType}
	byType, byYear, byYearType := a.byType[activityType], a.byYear[rec.Year], a.byYearType[yt]
	if !byType.fits(distanceMM, rec.MovingTimeSeconds) ||
		!byYear.fits(distanceMM, rec.MovingTimeSeconds) ||
		!byYearType.fits(distanceMM, rec.MovingTimeSeconds) {
		return &InvalidRecordError{Field: "total", Value: rec.DistanceMeters, Reason: "would overflow the running tally"}
	}

	tallyFor(a.byType, activityType).add(distanceMM, rec.MovingTimeSeconds)
	tallyFor(a.byYear, rec.Year).add(distanceMM, rec.MovingTimeSeconds)
	tallyFor(a.byYearType, yt).add(distanceMM, rec.MovingTimeSeconds)
	return nil
}

// IngestAll consumes seq once. When a record is rejected, onInvalid decides
// what happens: returning nil skips the record, returning an error stops the
// fold with that error. A nil onInvalid stops on the first invalid record.
// It returns the number of records applied.
func (a *Aggregator) IngestAll(seq iter.Seq[ActivityRecord], onInvalid func(ActivityRecord, error) error) (int, error) {
	applied := 0
	for rec := range seq {
		if err := a.Ingest(rec); err != nil {
			if onInvalid == nil {
				return applied, err
			}
			if cbErr := onInvalid(rec, err); cbErr != nil {
				return applied, cbErr
			}
			continue
		}
		applied++
	}
	return applied, nil
}

func tallyFor[K comparable](m map[K]*tally, key K) *tally {
	t, ok := m[key]
	if !ok {
		t = &tally{}
		m[key] = t
	}
	return t
}

// TypeBucket returns the tally for an activity type (zero if never seen)
func (a *Aggregator) TypeBucket(activityType string) Bucket {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byType[activityType].bucket()
}

// YearBucket returns the tally for a calendar year (zero if never seen)
func (a *Aggregator) YearBucket(year int) Bucket {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byYear[year].bucket()
}

// YearTypeBucket returns the tally for one type within one year (zero if never seen)
func (a *Aggregator) YearTypeBucket(year int, activityType string) Bucket {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byYearType[YearType{Year: year, Type: activityType}].bucket()
}

// DistanceMilesByType returns whole miles recorded for an activity type
func (a *Aggregator) DistanceMilesByType(activityType string) int64 {
	return a.TypeBucket(activityType).Miles()
}

// DistanceMilesByYear returns whole miles recorded in a year
func (a *Aggregator) DistanceMilesByYear(year int) int64 {
	return a.YearBucket(year).Miles()
}

// DistanceMiles returns whole miles recorded for a type within a year
func (a *Aggregator) DistanceMiles(year int, activityType string) int64 {
	return a.YearTypeBucket(year, activityType).Miles()
}

// MovingTimeHoursByType returns whole moving hours for an activity type
func (a *Aggregator) MovingTimeHoursByType(activityType string) int64 {
	return a.TypeBucket(activityType).Hours()
}

// MovingTimeHoursByYear returns whole moving hours in a year
func (a *Aggregator) MovingTimeHoursByYear(year int) int64 {
	return a.YearBucket(year).Hours()
}

// MovingTimeHours returns whole moving hours for a type within a year
func (a *Aggregator) MovingTimeHours(year int, activityType string) int64 {
	return a.YearTypeBucket(year, activityType).Hours()
}

// CountByType returns the number of activities of a type
func (a *Aggregator) CountByType(activityType string) int64 {
	return a.TypeBucket(activityType).Count
}

// CountByYear returns the number of activities in a year
func (a *Aggregator) CountByYear(year int) int64 {
	return a.YearBucket(year).Count
}

// Count returns the number of activities of a type within a year
func (a *Aggregator) Count(year int, activityType string) int64 {
	return a.YearTypeBucket(year, activityType).Count
}

// KnownYears returns every year with at least one activity, in no particular order
func (a *Aggregator) KnownYears() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	years := make([]int, 0, len(a.byYear))
	for y := range a.byYear {
		years = append(years, y)
	}
	return years
}

// KnownTypes returns every activity type seen, in no particular order
func (a *Aggregator) KnownTypes() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	types := make([]string, 0, len(a.byType))
	for t := range a.byType {
		types = append(types, t)
	}
	return types
}

// YearToDate returns untruncated miles and hours recorded in year. When
// types are given only those activity types count.
func (a *Aggregator) YearToDate(year int, types ...string) (miles, hours float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var b Bucket
	if len(types) == 0 {
		b = a.byYear[year].bucket()
	} else {
		var total tally
		seen := make(map[string]bool, len(types))
		for _, t := range types {
			t = strings.TrimSpace(t)
			if seen[t] {
				continue
			}
			seen[t] = true
			if yt, ok := a.byYearType[YearType{Year: year, Type: t}]; ok {
				total.count += yt.count
				total.distanceMM += yt.distanceMM
				total.movingSeconds += yt.movingSeconds
			}
		}
		b = total.bucket()
	}
	return MetersToMiles(b.DistanceMeters), SecondsToHours(b.MovingTimeSeconds)
}

// Snapshot is a point-in-time copy of every tally
type Snapshot struct {
	ByType     map[string]Bucket
	ByYear     map[int]Bucket
	ByYearType map[YearType]Bucket
}

// Snapshot copies all three dimensions under one read lock, so the copy
// satisfies the per-year sum invariant.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		ByType:     make(map[string]Bucket, len(a.byType)),
		ByYear:     make(map[int]Bucket, len(a.byYear)),
		ByYearType: make(map[YearType]Bucket, len(a.byYearType)),
	}
	for k, t := range a.byType {
		s.ByType[k] = t.bucket()
	}
	for k, t := range a.byYear {
		s.ByYear[k] = t.bucket()
	}
	for k, t := range a.byYearType {
		s.ByYearType[k] = t.bucket()
	}
	return s
}
