package stats

import "math"

// MilesPerMeter is the conversion factor used for every displayed distance.
const MilesPerMeter = 0.000621371

const secondsPerHour = 3600

// MetersToMiles converts meters to fractional miles
func MetersToMiles(meters float64) float64 {
	return meters * MilesPerMeter
}

// SecondsToHours converts seconds to fractional hours
func SecondsToHours(seconds int64) float64 {
	return float64(seconds) / secondsPerHour
}

// truncMiles converts meters to whole miles, truncating toward zero.
func truncMiles(meters float64) int64 {
	return int64(MetersToMiles(meters))
}

// truncHours converts seconds to whole hours, truncating toward zero.
func truncHours(seconds int64) int64 {
	return seconds / secondsPerHour
}

// millimeters rounds a distance to whole millimetres so sums are exact.
func millimeters(meters float64) int64 {
	return int64(math.Round(meters * 1000))
}

func roundHalfEven(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.RoundToEven(v*scale) / scale
}
