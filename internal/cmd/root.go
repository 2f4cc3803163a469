package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	syncsvc "github.com/joshdurbin/strava-goals/internal/sync"
	"github.com/spf13/cobra"
)

var (
	verbosity            int
	logFormat            string
	dbPath               string
	mcpPort              int
	syncInterval         time.Duration
	tokenRefreshInterval time.Duration
	noSync               bool
	forceReauth          bool

	goalDistance     float64
	goalHours        float64
	goalTypes        []string
	virtualGear      []string
	trainerAsVirtual bool
)

var rootCmd = &cobra.Command{
	Use:   "strava-goals",
	Short: "Strava Goals - yearly totals and goal pacing for your Strava activities",
	Long: `Strava Goals syncs your Strava activities to a local SQLite database,
totals them by activity type and calendar year, and works out the pace
needed to hit an annual distance and moving time goal.

The server runs with:
- Automatic authentication via OAuth (prompts on first run)
- Background token refresh to keep authentication valid
- Periodic activity sync from Strava
- MCP server exposing totals and goal pacing to AI assistants

On first run, you will be prompted for your Strava API credentials
unless STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are set.
Get these from https://www.strava.com/settings/api

Use --force-reauth to re-enter credentials and re-authenticate.
Use the stats subcommand to print the totals once and exit.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging based on verbosity before any command runs
		format, err := logging.ParseFormat(logFormat)
		if err != nil {
			return err
		}
		logging.Setup(logging.Level(verbosity), format)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, err := goalFromFlags()
		if err != nil {
			return err
		}

		// Create runtime config from CLI flags
		rtCfg := &RuntimeConfig{
			DBPath:               dbPath,
			MCPPort:              mcpPort,
			SyncInterval:         syncInterval,
			TokenRefreshInterval: tokenRefreshInterval,
			NoSync:               noSync,
			ForceReauth:          forceReauth,
			Goal:                 goal,
			GoalTypes:            goalTypes,
			Converter:            converterFromFlags(),
		}

		return Run(rtCfg)
	},
}

func init() {
	// Logging
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v for debug, -vv for trace with HTTP headers)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output format: console or json")

	// Runtime settings as CLI flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "strava_activities.db", "path to SQLite database file")
	rootCmd.Flags().IntVarP(&mcpPort, "port", "p", 8080, "MCP server port (0 for stdio mode)")
	rootCmd.Flags().DurationVar(&syncInterval, "sync-interval", 15*time.Minute, "interval between activity syncs")
	rootCmd.Flags().DurationVar(&tokenRefreshInterval, "token-refresh-interval", 30*time.Minute, "interval between token refresh checks")

	// Offline mode
	rootCmd.Flags().BoolVar(&noSync, "no-sync", false, "run MCP server only without Strava API sync (offline mode)")

	// Force re-authentication
	rootCmd.PersistentFlags().BoolVar(&forceReauth, "force-reauth", false, "force OAuth re-authentication, clearing existing tokens")

	// Goal and classification
	rootCmd.PersistentFlags().Float64Var(&goalDistance, "goal-distance", 0, "annual distance goal in miles")
	rootCmd.PersistentFlags().Float64Var(&goalHours, "goal-hours", 0, "annual moving time goal in hours")
	rootCmd.PersistentFlags().StringArrayVar(&goalTypes, "goal-type", nil, "activity type counted toward the goal (repeatable, default all)")
	rootCmd.PersistentFlags().StringArrayVar(&virtualGear, "virtual-gear", nil, "gear ID whose rides count as VirtualRide (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&trainerAsVirtual, "trainer-as-virtual", false, "count rides flagged as trainer rides as VirtualRide")

	rootCmd.AddCommand(statsCmd)
}

// goalFromFlags returns the zero goal when neither goal flag is set
func goalFromFlags() (stats.GoalTarget, error) {
	if goalDistance == 0 && goalHours == 0 {
		return stats.GoalTarget{}, nil
	}
	goal, err := stats.NewGoalTarget(goalDistance, goalHours)
	if err != nil {
		return stats.GoalTarget{}, fmt.Errorf("--goal-distance and --goal-hours: %w", err)
	}
	return goal, nil
}

func converterFromFlags() syncsvc.Converter {
	return buildConverter(trainerAsVirtual, virtualGear)
}

// buildConverter maps the classification flags onto reclassification rules
func buildConverter(trainer bool, gearIDs []string) syncsvc.Converter {
	const virtualRide = "VirtualRide"

	var conv syncsvc.Converter
	switch {
	case trainer:
		conv.Rules = append(conv.Rules, syncsvc.TrainerRule(virtualRide, gearIDs...))
	case len(gearIDs) > 0:
		conv.Rules = append(conv.Rules, syncsvc.GearRule(virtualRide, gearIDs...))
	}
	return conv
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
