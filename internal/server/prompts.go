package server

import (
	"context"
	"fmt"

	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerPrompts registers all MCP prompts for the server
func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "goal_checkin",
		Description: "Review year-to-date progress against the annual goal and plan the weeks ahead",
		Arguments: []*mcp.PromptArgument{
			{
				Name:        "type",
				Description: "Activity type to focus on (e.g., 'Ride'). Leave empty for the configured goal types.",
				Required:    false,
			},
		},
	}, s.goalCheckinPrompt)

	logging.Debug("MCP prompts registered", "count", 1)
}

// goalCheckinPrompt generates a prompt for a goal progress review
func (s *Server) goalCheckinPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := "all goal activity types"
	typesArg := "{}"
	if req.Params.Arguments != nil {
		if t, ok := req.Params.Arguments["type"]; ok && t != "" {
			focus = t
			typesArg = fmt.Sprintf(`{"types": [%q]}`, t)
		}
	}

	logging.Info("MCP prompt requested", "prompt", "goal_checkin", "type", focus)

	promptText := fmt.Sprintf(`Please check in on my annual training goal, focusing on %s.

Use the following tools to gather data:
1. **get_goal_pace** with %s to see year-to-date progress and the pace still needed
2. **get_activity_totals** with group_by="year_type" to compare this year against previous years

Then provide:
- **Status**: Whether I'm ahead, on pace, or behind, with the percent complete for distance and time
- **Required Pace**: Miles and hours per week needed from today to December 31
- **History**: How this year compares with the same sports in earlier years
- **Plan**: A realistic weekly plan to close any gap

Please be specific with numbers and use the actual data from the tools.`, focus, typesArg)

	return &mcp.GetPromptResult{
		Description: "Annual goal check-in prompt",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText},
			},
		},
	}, nil
}
