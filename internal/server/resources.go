package server

import (
	"context"
	"encoding/json"

	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	yearlyTotalsURI = "strava://totals/years"
	currentGoalURI  = "strava://goal/current"
)

// registerResources registers all MCP resources for the server
func (s *Server) registerResources() {
	// Static resource: Totals per calendar year
	s.mcp.AddResource(&mcp.Resource{
		URI:         yearlyTotalsURI,
		Name:        "yearly_totals",
		Description: "Activity count, miles and hours for every calendar year",
		MIMEType:    "application/json",
	}, s.readYearlyTotals)

	// Static resource: Pace against the configured goal
	s.mcp.AddResource(&mcp.Resource{
		URI:         currentGoalURI,
		Name:        "current_goal",
		Description: "Progress and required pace for the configured annual goal as of today",
		MIMEType:    "application/json",
	}, s.readCurrentGoal)

	logging.Debug("MCP resources registered", "count", 2)
}

// readYearlyTotals returns the totals grouped by year
func (s *Server) readYearlyTotals(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logging.Info("MCP resource read", "resource", "yearly_totals")

	agg, err := s.aggregator(ctx)
	if err != nil {
		logging.Error("readYearlyTotals failed", "error", err)
		return nil, err
	}
	return jsonResource(yearlyTotalsURI, buildTotals(agg.Snapshot(), groupByYear, 0, ""))
}

// readCurrentGoal returns the pacing report for the configured goal
func (s *Server) readCurrentGoal(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logging.Info("MCP resource read", "resource", "current_goal")

	if s.cfg.Goal == (stats.GoalTarget{}) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      currentGoalURI,
					MIMEType: "application/json",
					Text:     `{"error": "No goal configured"}`,
				},
			},
		}, nil
	}

	agg, err := s.aggregator(ctx)
	if err != nil {
		logging.Error("readCurrentGoal failed", "error", err)
		return nil, err
	}
	types := goalTypes(nil, s.cfg.GoalTypes)
	return jsonResource(currentGoalURI, paceFor(agg, s.cfg.Goal, types, s.cfg.Now()))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, NewInternalErrorWithCause("failed to marshal resource", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(jsonData),
			},
		},
	}, nil
}
