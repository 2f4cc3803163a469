package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	syncsvc "github.com/joshdurbin/strava-goals/internal/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "strava-goals"
	serverVersion = "1.0.0"
)

// ptr returns a pointer to the given value - useful for optional fields in structs
func ptr[T any](v T) *T {
	return &v
}

// Querier is the cache read the server needs
type Querier interface {
	ListActivities(ctx context.Context) ([]db.Activity, error)
}

// Config carries the defaults used when a tool call leaves them out
type Config struct {
	// Goal is the default annual target; zero means callers must supply one
	Goal stats.GoalTarget
	// GoalTypes restricts year-to-date progress to these activity types; empty means all
	GoalTypes []string
	// Converter applies reclassification rules while rebuilding totals
	Converter syncsvc.Converter
	// Now defaults to time.Now
	Now func() time.Time
}

// Server wraps the MCP server and the aggregated activity totals
type Server struct {
	mcp     *mcp.Server
	queries Querier
	cfg     Config

	agg atomic.Pointer[stats.Aggregator]
}

// MCPServer returns the underlying MCP server (for use with HTTP/SSE transport)
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// New creates a new MCP server with totals and goal pacing tools
func New(queries Querier, cfg Config) *Server {
	logging.Info("MCP server initializing", "name", serverName, "version", serverVersion)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		queries: queries,
		cfg:     cfg,
	}

	logging.Debug("Registering MCP tools")
	s.registerTotalsTools()
	s.registerGoalTools()

	logging.Debug("Registering MCP resources")
	s.registerResources()

	logging.Debug("Registering MCP prompts")
	s.registerPrompts()

	logging.Info("MCP server initialized", "tools_registered", 2, "resources_registered", 2, "prompts_registered", 1)
	return s
}

// Run starts the MCP server over stdio transport
func (s *Server) Run(ctx context.Context) error {
	logging.Info("MCP server starting")
	defer logging.Info("MCP server stopped")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Refresh rebuilds the totals from the cache and swaps them in.
// Readers keep seeing the previous totals until the new ones are complete.
func (s *Server) Refresh(ctx context.Context) error {
	agg, summary, err := syncsvc.BuildAggregator(ctx, s.queries, s.cfg.Converter)
	if err != nil {
		return err
	}
	s.agg.Store(agg)
	logging.Info("activity totals refreshed", "ingested", summary.Ingested, "skipped", summary.Skipped)
	return nil
}

// aggregator returns the current totals, building them on first use
func (s *Server) aggregator(ctx context.Context) (*stats.Aggregator, error) {
	if agg := s.agg.Load(); agg != nil {
		return agg, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, NewDatabaseErrorWithContext("activity load", err)
	}
	return s.agg.Load(), nil
}

// parseDate reads a YYYY-MM-DD date in the location of now
func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return t, nil
}
