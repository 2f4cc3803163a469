package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joshdurbin/strava-goals/internal/auth"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/joshdurbin/strava-goals/internal/strava"
	syncsvc "github.com/joshdurbin/strava-goals/internal/sync"
	"github.com/joshdurbin/strava-goals/internal/workers"
	"github.com/spf13/cobra"
)

var (
	statsSync bool
	statsLive bool
	statsAsOf string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print yearly and per-type totals and the goal pacing report",
	Long: `Print activity totals by calendar year, by activity type and by
year x type, followed by the pace needed to reach the annual goal.

By default the totals come from the local cache. --sync pulls new
activities first; --live streams the whole history straight from the
Strava API without touching the cached activities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, err := goalFromFlags()
		if err != nil {
			return err
		}

		asOf := time.Now()
		if statsAsOf != "" {
			asOf, err = time.ParseInLocation(time.DateOnly, statsAsOf, time.Local)
			if err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		agg, err := loadTotals(ctx, statsOptions{
			DBPath:      dbPath,
			Sync:        statsSync,
			Live:        statsLive,
			ForceReauth: forceReauth,
			Converter:   converterFromFlags(),
		})
		if err != nil {
			return err
		}

		return printReport(cmd.OutOrStdout(), agg, goal, goalTypes, asOf)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsSync, "sync", false, "sync new activities from Strava before printing")
	statsCmd.Flags().BoolVar(&statsLive, "live", false, "aggregate straight from the Strava API instead of the cache")
	statsCmd.Flags().StringVar(&statsAsOf, "as-of", "", "pace from this date (YYYY-MM-DD, default today)")
}

type statsOptions struct {
	DBPath      string
	Sync        bool
	Live        bool
	ForceReauth bool
	Converter   syncsvc.Converter
}

// loadTotals builds the aggregator from the cache or the live API
func loadTotals(ctx context.Context, opts statsOptions) (*stats.Aggregator, error) {
	log := logging.Logger

	queries, closer, err := openDatabase(ctx, opts.DBPath)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	storage := auth.NewStorage(queries)
	if opts.Sync || opts.Live {
		if err := ensureAuthenticated(ctx, storage, opts.ForceReauth); err != nil {
			return nil, fmt.Errorf("authentication: %w", err)
		}
	}

	if opts.Live {
		token, err := storage.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		agg := stats.NewAggregator()
		summary, err := syncsvc.Stream(agg, strava.NewClient(token).Activities(ctx, time.Time{}), opts.Converter)
		if err != nil {
			return nil, err
		}
		log.Info().Int("ingested", summary.Ingested).Int("skipped", summary.Skipped).Msg("live totals built")
		return agg, nil
	}

	if opts.Sync {
		syncer := workers.NewActivitySyncer(queries, storage, 0, strava.DefaultRetryConfig())
		if _, err := syncer.SyncOnce(ctx); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
	}

	agg, summary, err := syncsvc.BuildAggregator(ctx, queries, opts.Converter)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("ingested", summary.Ingested).Int("skipped", summary.Skipped).Msg("totals built from cache")
	return agg, nil
}

// printReport writes the three totals tables and, with a goal, the pacing report
func printReport(w io.Writer, agg *stats.Aggregator, goal stats.GoalTarget, types []string, asOf time.Time) error {
	snap := agg.Snapshot()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	years := slices.Sorted(maps.Keys(snap.ByYear))
	fmt.Fprintln(tw, "YEAR\tCOUNT\tMILES\tHOURS\t")
	for _, y := range years {
		writeBucketRow(tw, fmt.Sprint(y), snap.ByYear[y])
	}
	fmt.Fprintln(tw, "\t\t\t\t")

	typeNames := slices.Sorted(maps.Keys(snap.ByType))
	fmt.Fprintln(tw, "TYPE\tCOUNT\tMILES\tHOURS\t")
	for _, t := range typeNames {
		writeBucketRow(tw, t, snap.ByType[t])
	}
	fmt.Fprintln(tw, "\t\t\t\t")

	keys := slices.SortedFunc(maps.Keys(snap.ByYearType), func(a, b stats.YearType) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Type, b.Type))
	})
	fmt.Fprintln(tw, "YEAR/TYPE\tCOUNT\tMILES\tHOURS\t")
	for _, k := range keys {
		writeBucketRow(tw, fmt.Sprintf("%d %s", k.Year, k.Type), snap.ByYearType[k])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if goal == (stats.GoalTarget{}) {
		return nil
	}

	miles, hours := agg.YearToDate(asOf.Year(), types...)
	report := goal.Pace(miles, hours, asOf)

	fmt.Fprintf(w, "\nGoal %s: %s mi, %s h", asOf.Format("2006"),
		humanize.Commaf(goal.DistanceMiles), humanize.Commaf(goal.MovingTimeHours))
	if len(types) > 0 {
		fmt.Fprintf(w, " (%v)", types)
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "As of\t%s\n", report.AsOf)
	fmt.Fprintf(tw, "So far\t%s mi (%.1f%%)\t%s h (%.1f%%)\n",
		humanize.FormatFloat("#,###.##", miles), report.DistancePercentComplete,
		humanize.FormatFloat("#,###.##", hours), report.TimePercentComplete)
	fmt.Fprintf(tw, "Remaining\t%s mi\t%s h\n",
		humanize.FormatFloat("#,###.##", report.RemainingDistanceMiles),
		humanize.FormatFloat("#,###.##", report.RemainingMovingTimeHours))
	fmt.Fprintf(tw, "Days left\t%d (%.2f weeks)\n", report.RemainingDays, report.RemainingWeeks)
	fmt.Fprintf(tw, "Per day\t%.2f mi\t%.2f min\n", report.DistancePerDay, report.TimePerDayMinutes)
	fmt.Fprintf(tw, "Per week\t%.2f mi\t%.2f h\n", report.DistancePerWeek, report.TimePerWeekHours)
	return tw.Flush()
}

func writeBucketRow(w io.Writer, label string, b stats.Bucket) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", label,
		humanize.Comma(b.Count), humanize.Comma(b.Miles()), humanize.Comma(b.Hours()))
}
