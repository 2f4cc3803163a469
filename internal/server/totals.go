package server

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Group-by dimensions for get_activity_totals
const (
	groupByType     = "type"
	groupByYear     = "year"
	groupByYearType = "year_type"
)

// ActivityTotalsInput - input for totals grouped by type, year or both
type ActivityTotalsInput struct {
	GroupBy string `json:"group_by,omitempty" jsonschema:"How to group totals. Valid values: 'type' (by activity type), 'year' (by calendar year), 'year_type' (each type within each year). Default: type."`
	Year    int    `json:"year,omitempty" jsonschema:"Only include this calendar year (e.g., 2024). Ignored when group_by is 'type'."`
	Type    string `json:"type,omitempty" jsonschema:"Only include this activity type (e.g., Run, Ride, VirtualRide). Ignored when group_by is 'year'."`
}

// TotalRow is one group of the totals table
type TotalRow struct {
	Year              int     `json:"year,omitempty"`
	Type              string  `json:"type,omitempty"`
	Count             int64   `json:"count"`
	Miles             int64   `json:"miles"`
	Hours             int64   `json:"hours"`
	DistanceMeters    float64 `json:"distance_meters"`
	MovingTimeSeconds int64   `json:"moving_time_seconds"`
	Summary           string  `json:"summary"`
}

// ActivityTotalsOutput - output for get_activity_totals
type ActivityTotalsOutput struct {
	GroupBy          string            `json:"group_by"`
	Rows             []TotalRow        `json:"rows"`
	Years            []int             `json:"years"`
	Types            []string          `json:"types"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
}

func (s *Server) registerTotalsTools() {
	logging.Debug("Registering tool", "name", "get_activity_totals")
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_activity_totals",
		Description: `Get lifetime activity totals (count, whole miles, whole hours) grouped by activity type, calendar year, or both.

Use when:
- User asks "How many miles have I ridden?" or "What did I do in 2023?"
- User wants to compare years or sports
- User needs the totals behind a goal check

Parameters:
- group_by (string): "type", "year", or "year_type". Default: "type".
- year (integer): Only this calendar year.
- type (string): Only this activity type (Run, Ride, VirtualRide, etc.).

Returns: One row per group with count, miles and hours truncated to whole units, plus exact metres and seconds. Also lists every known year and type.

Example: {"group_by": "year"} or {"group_by": "year_type", "year": 2024}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Get Activity Totals",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, s.getActivityTotals)
}

// getActivityTotals - totals table handler
func (s *Server) getActivityTotals(ctx context.Context, req *mcp.CallToolRequest, input ActivityTotalsInput) (*mcp.CallToolResult, ActivityTotalsOutput, error) {
	logging.Info("MCP tool call", "tool", "get_activity_totals", "group_by", input.GroupBy, "year", input.Year, "type", input.Type)
	if logging.IsVerbose() {
		logging.Debug("MCP request params", "tool", "get_activity_totals", "input", logging.ToJSON(input))
	}

	groupBy := strings.ToLower(strings.TrimSpace(input.GroupBy))
	if groupBy == "" {
		groupBy = groupByType
	}
	if groupBy != groupByType && groupBy != groupByYear && groupBy != groupByYearType {
		return nil, ActivityTotalsOutput{}, NewInvalidInputErrorWithDetails(
			"Invalid group_by", fmt.Sprintf("got %q, want type, year or year_type", input.GroupBy))
	}

	agg, err := s.aggregator(ctx)
	if err != nil {
		return nil, ActivityTotalsOutput{}, err
	}

	output := buildTotals(agg.Snapshot(), groupBy, input.Year, strings.TrimSpace(input.Type))
	output.SuggestedActions = SuggestNextActions("totals")
	return nil, output, nil
}

// buildTotals turns a snapshot into sorted rows for one grouping
func buildTotals(snap stats.Snapshot, groupBy string, year int, activityType string) ActivityTotalsOutput {
	output := ActivityTotalsOutput{
		GroupBy: groupBy,
		Rows:    []TotalRow{},
		Years:   sortedKeys(snap.ByYear),
		Types:   sortedKeys(snap.ByType),
	}

	switch groupBy {
	case groupByType:
		for t, b := range snap.ByType {
			if activityType != "" && t != activityType {
				continue
			}
			output.Rows = append(output.Rows, newTotalRow(0, t, b))
		}
	case groupByYear:
		for y, b := range snap.ByYear {
			if year != 0 && y != year {
				continue
			}
			output.Rows = append(output.Rows, newTotalRow(y, "", b))
		}
	case groupByYearType:
		for k, b := range snap.ByYearType {
			if (year != 0 && k.Year != year) || (activityType != "" && k.Type != activityType) {
				continue
			}
			output.Rows = append(output.Rows, newTotalRow(k.Year, k.Type, b))
		}
	}

	slices.SortFunc(output.Rows, func(a, b TotalRow) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Type, b.Type))
	})
	return output
}

func newTotalRow(year int, activityType string, b stats.Bucket) TotalRow {
	return TotalRow{
		Year:              year,
		Type:              activityType,
		Count:             b.Count,
		Miles:             b.Miles(),
		Hours:             b.Hours(),
		DistanceMeters:    b.DistanceMeters,
		MovingTimeSeconds: b.MovingTimeSeconds,
		Summary: fmt.Sprintf("%s activities, %s mi, %s h",
			humanize.Comma(b.Count), humanize.Comma(b.Miles()), humanize.Comma(b.Hours())),
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
