package strava

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitInfo contains rate limit information from the API
type RateLimitInfo struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	IsRateLimited bool

	TimeUntil15MinReset time.Duration
	TimeUntilDailyReset time.Duration
	RecommendedWait     time.Duration
}

// Headroom kept below each limit
const rateLimitBuffer = 5

// timeUntilNext15MinWindow returns the wait until the next quarter hour.
// Strava resets the short window at :00, :15, :30 and :45.
func timeUntilNext15MinWindow(now time.Time) time.Duration {
	minute := now.Minute()

	nextBoundary := ((minute / 15) + 1) * 15
	minutesUntil := nextBoundary - minute

	wait := time.Duration(minutesUntil)*time.Minute -
		time.Duration(now.Second())*time.Second -
		time.Duration(now.Nanosecond())

	// 2s past the boundary
	return wait + 2*time.Second
}

// timeUntilMidnightUTC returns the wait until the daily window resets
func timeUntilMidnightUTC(now time.Time) time.Duration {
	nowUTC := now.UTC()
	midnight := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(nowUTC) + 2*time.Second
}

// IsApproaching15MinLimit returns true if we're close to the 15-minute limit
func (info *RateLimitInfo) IsApproaching15MinLimit() bool {
	if info.Limit15Min == 0 {
		return false
	}
	return info.Usage15Min >= info.Limit15Min-rateLimitBuffer
}

// IsApproachingDailyLimit returns true if we're close to the daily limit
func (info *RateLimitInfo) IsApproachingDailyLimit() bool {
	if info.LimitDaily == 0 {
		return false
	}
	return info.UsageDaily >= info.LimitDaily-rateLimitBuffer
}

// UsageString formats usage as "15min/limit daily/limit" for logs
func (info *RateLimitInfo) UsageString() string {
	return strconv.Itoa(info.Usage15Min) + "/" + strconv.Itoa(info.Limit15Min) + " " +
		strconv.Itoa(info.UsageDaily) + "/" + strconv.Itoa(info.LimitDaily)
}

// recompute refreshes the reset timers and recommended wait for now
func (info *RateLimitInfo) recompute(now time.Time) {
	info.TimeUntil15MinReset = timeUntilNext15MinWindow(now)
	info.TimeUntilDailyReset = timeUntilMidnightUTC(now)
	info.RecommendedWait = 0

	switch {
	case info.Limit15Min > 0 && info.Usage15Min >= info.Limit15Min:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.LimitDaily > 0 && info.UsageDaily >= info.LimitDaily:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntilDailyReset
	case info.IsApproaching15MinLimit():
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.IsApproachingDailyLimit():
		info.RecommendedWait = info.TimeUntilDailyReset
	}
}

// minPositive returns the smaller of two values, ignoring unset (<= 0) ones
func minPositive(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return min(a, b)
}

// parsePair reads a "15min,daily" header value
func parsePair(v string) (short, daily int) {
	if v == "" {
		return 0, 0
	}
	parts := strings.Split(v, ",")
	short, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	if len(parts) >= 2 {
		daily, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return short, daily
}

// parseRateLimitHeaders combines the general X-RateLimit-* and the stricter
// X-ReadRateLimit-* headers: the lower limit and the higher usage win.
func parseRateLimitHeaders(headers http.Header, now time.Time) RateLimitInfo {
	generalLimit15, generalLimitDaily := parsePair(headers.Get("X-RateLimit-Limit"))
	generalUsage15, generalUsageDaily := parsePair(headers.Get("X-RateLimit-Usage"))
	readLimit15, readLimitDaily := parsePair(headers.Get("X-ReadRateLimit-Limit"))
	readUsage15, readUsageDaily := parsePair(headers.Get("X-ReadRateLimit-Usage"))

	info := RateLimitInfo{
		Limit15Min: minPositive(generalLimit15, readLimit15),
		LimitDaily: minPositive(generalLimitDaily, readLimitDaily),
		Usage15Min: max(generalUsage15, readUsage15),
		UsageDaily: max(generalUsageDaily, readUsageDaily),
	}
	info.recompute(now)
	return info
}
