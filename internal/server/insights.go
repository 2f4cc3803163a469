package server

import (
	"fmt"
	"math"
	"time"

	"github.com/joshdurbin/strava-goals/internal/stats"
)

// Insight represents a single AI-friendly insight about the data
type Insight struct {
	Type    string `json:"type"`    // e.g., "trend", "achievement", "warning", "suggestion"
	Message string `json:"message"` // Human-readable insight
}

// SuggestedAction represents a suggested next tool call
type SuggestedAction struct {
	Tool        string `json:"tool"`        // Tool name to call
	Description string `json:"description"` // Why this action is suggested
	Priority    string `json:"priority"`    // "high", "medium", "low"
}

// Points either side of the calendar pace still counted as on pace
const onPaceTolerance = 5.0

// InsightGenerator provides methods for generating insights from data
type InsightGenerator struct{}

// NewInsightGenerator creates a new insight generator
func NewInsightGenerator() *InsightGenerator {
	return &InsightGenerator{}
}

// YearElapsedPercent returns how much of asOf's calendar year has passed,
// counting asOf itself as done
func YearElapsedPercent(asOf time.Time) float64 {
	daysInYear := time.Date(asOf.Year(), time.December, 31, 0, 0, 0, 0, asOf.Location()).YearDay()
	return 100 * float64(daysInYear-stats.RemainingDays(asOf)) / float64(daysInYear)
}

// GeneratePaceInsights compares goal completion against the share of the year gone
func (g *InsightGenerator) GeneratePaceInsights(report stats.PacingReport, elapsedPercent float64) []Insight {
	var insights []Insight

	insights = append(insights, g.metricInsight(
		"distance", report.DistancePercentComplete, elapsedPercent,
		fmt.Sprintf("%.1f mi/week", report.DistancePerWeek))...)
	insights = append(insights, g.metricInsight(
		"time", report.TimePercentComplete, elapsedPercent,
		fmt.Sprintf("%.1f h/week", report.TimePerWeekHours))...)

	if report.RemainingDays == 0 &&
		(report.RemainingDistanceMiles > 0 || report.RemainingMovingTimeHours > 0) {
		insights = append(insights, Insight{
			Type:    "warning",
			Message: "It's the last day of the year - whatever is left has to happen today",
		})
	}

	return insights
}

func (g *InsightGenerator) metricInsight(metric string, percent, elapsed float64, needed string) []Insight {
	if percent >= 100 {
		return []Insight{{
			Type:    "achievement",
			Message: fmt.Sprintf("You've met your %s goal (%.1f%% complete)", metric, percent),
		}}
	}

	diff := percent - elapsed
	switch {
	case math.Abs(diff) < onPaceTolerance:
		return []Insight{{
			Type:    "trend",
			Message: fmt.Sprintf("Your %s goal is on pace (%.1f%% done, %.1f%% of the year gone)", metric, percent, elapsed),
		}}
	case diff > 0:
		return []Insight{{
			Type:    "achievement",
			Message: fmt.Sprintf("Your %s goal is ahead of pace by %.1f points", metric, diff),
		}}
	default:
		return []Insight{
			{
				Type:    "warning",
				Message: fmt.Sprintf("Your %s goal is behind pace by %.1f points", metric, -diff),
			},
			{
				Type:    "suggestion",
				Message: fmt.Sprintf("Average %s from here to catch up", needed),
			},
		}
	}
}

// SuggestNextActions suggests logical next tool calls based on context
func SuggestNextActions(context string) []SuggestedAction {
	suggestions := make([]SuggestedAction, 0)

	switch context {
	case "totals":
		suggestions = append(suggestions,
			SuggestedAction{
				Tool:        "get_goal_pace",
				Description: "Check this year's progress against the annual goal",
				Priority:    "high",
			},
			SuggestedAction{
				Tool:        "get_activity_totals",
				Description: "Regroup by year_type to see each sport per year",
				Priority:    "low",
			},
		)
	case "goal":
		suggestions = append(suggestions,
			SuggestedAction{
				Tool:        "get_activity_totals",
				Description: "Compare this year's totals with previous years",
				Priority:    "medium",
			},
		)
	}

	return suggestions
}
