package server

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GoalPaceInput - input for checking progress against an annual goal
type GoalPaceInput struct {
	DistanceMiles float64  `json:"distance_miles,omitempty" jsonschema:"Annual distance goal in miles. Defaults to the configured goal."`
	Hours         float64  `json:"hours,omitempty" jsonschema:"Annual moving time goal in hours. Defaults to the configured goal."`
	AsOf          string   `json:"as_of,omitempty" jsonschema:"Date to pace from. Format: YYYY-MM-DD. Default: today."`
	Types         []string `json:"types,omitempty" jsonschema:"Activity types that count toward the goal (e.g., [\"Ride\", \"VirtualRide\"]). Defaults to the configured types, or all types."`
}

// GoalPaceOutput - output for get_goal_pace
type GoalPaceOutput struct {
	Year               int                `json:"year"`
	Types              []string           `json:"types,omitempty"`
	Goal               stats.GoalTarget   `json:"goal"`
	YearToDateMiles    float64            `json:"year_to_date_miles"`
	YearToDateHours    float64            `json:"year_to_date_hours"`
	YearElapsedPercent float64            `json:"year_elapsed_percent"`
	Pace               stats.PacingReport `json:"pace"`
	Insights           []Insight          `json:"insights,omitempty"`
	SuggestedActions   []SuggestedAction  `json:"suggested_actions,omitempty"`
}

func (s *Server) registerGoalTools() {
	logging.Debug("Registering tool", "name", "get_goal_pace")
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_goal_pace",
		Description: `Check year-to-date progress against an annual distance and moving time goal, and the pace needed to finish it by December 31.

Use when:
- User asks "Am I on track for my 5,000 mile goal?" or "How much do I need to ride per week?"
- User wants per-day or per-week targets for the rest of the year
- User needs to know how far ahead or behind the calendar they are

Parameters:
- distance_miles (number): Annual distance goal. Defaults to the configured goal.
- hours (number): Annual moving time goal. Defaults to the configured goal.
- as_of (string): Pace from this date, YYYY-MM-DD. Default: today.
- types (array of strings): Activity types counted toward the goal. Default: configured types, or all.

Returns: Year-to-date miles and hours, remaining days and weeks, the distance and time needed per day and per week, percent complete, and on-pace insights.

Example: {} or {"distance_miles": 5000, "hours": 250, "types": ["Ride", "VirtualRide"]}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Get Goal Pace",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, s.getGoalPace)
}

// getGoalPace - goal pacing handler
func (s *Server) getGoalPace(ctx context.Context, req *mcp.CallToolRequest, input GoalPaceInput) (*mcp.CallToolResult, GoalPaceOutput, error) {
	logging.Info("MCP tool call", "tool", "get_goal_pace", "distance_miles", input.DistanceMiles, "hours", input.Hours, "as_of", input.AsOf)
	if logging.IsVerbose() {
		logging.Debug("MCP request params", "tool", "get_goal_pace", "input", logging.ToJSON(input))
	}

	distance, hours := input.DistanceMiles, input.Hours
	if distance == 0 {
		distance = s.cfg.Goal.DistanceMiles
	}
	if hours == 0 {
		hours = s.cfg.Goal.MovingTimeHours
	}
	goal, err := stats.NewGoalTarget(distance, hours)
	if err != nil {
		return nil, GoalPaceOutput{}, fromCore(err)
	}

	asOf, err := parseDate(input.AsOf, s.cfg.Now())
	if err != nil {
		return nil, GoalPaceOutput{}, NewInvalidInputErrorWithDetails("Invalid as_of date, expected YYYY-MM-DD", err.Error())
	}

	types := goalTypes(input.Types, s.cfg.GoalTypes)

	agg, err := s.aggregator(ctx)
	if err != nil {
		return nil, GoalPaceOutput{}, err
	}

	output := paceFor(agg, goal, types, asOf)
	output.SuggestedActions = SuggestNextActions("goal")
	return nil, output, nil
}

// goalTypes trims and dedupes the requested types, falling back to the defaults
func goalTypes(requested, defaults []string) []string {
	src := requested
	if len(src) == 0 {
		src = defaults
	}
	var types []string
	for _, t := range src {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types
}

// paceFor builds the pacing output from the year-to-date totals of asOf's year
func paceFor(agg *stats.Aggregator, goal stats.GoalTarget, types []string, asOf time.Time) GoalPaceOutput {
	miles, hours := agg.YearToDate(asOf.Year(), types...)
	report := goal.Pace(miles, hours, asOf)
	elapsed := YearElapsedPercent(asOf)

	return GoalPaceOutput{
		Year:               asOf.Year(),
		Types:              types,
		Goal:               goal,
		YearToDateMiles:    round2(miles),
		YearToDateHours:    round2(hours),
		YearElapsedPercent: round2(elapsed),
		Pace:               report,
		Insights:           NewInsightGenerator().GeneratePaceInsights(report, elapsed),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
