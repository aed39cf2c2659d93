package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/launch"
	"github.com/ibeckermayer/reelsort/internal/metrics"
	"github.com/ibeckermayer/reelsort/internal/numparse"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show free sorts left today, recent accounts and preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := launch.OpenStore()
		if err != nil {
			return err
		}
		defer st.Close()

		q := launch.NewQuota(cfg, st, logger)
		remaining := "unlimited"
		if !q.Paid() {
			n, err := q.Remaining(ctx)
			if err != nil {
				return err
			}
			remaining = fmt.Sprintf("%d of %d", n, cfg.License.FreeUsesPerDay)
		}
		prefs, err := st.Preferences(ctx)
		if err != nil {
			return err
		}
		events, err := st.UsageEventsSince(ctx, time.Now().AddDate(0, 0, -7))
		if err != nil {
			return err
		}
		accounts, err := st.RecentAccounts(ctx)
		if err != nil {
			return err
		}

		lastSort := "never"
		if len(events) > 0 {
			last := events[len(events)-1]
			lastSort = fmt.Sprintf("%s (%s)", humanize.Time(last.At), last.Action)
		}
		fmt.Println(rows("usage",
			"free sorts left", remaining,
			"sorts this week", humanize.Comma(int64(len(events))),
			"last sort", lastSort,
			"playback speed", fmt.Sprintf("%gx", prefs.DefaultSpeed),
			"view filter", prefs.FilterRange,
		))

		if len(accounts) > 0 {
			lines := make([]string, len(accounts))
			for i, a := range accounts {
				lines[i] = fmt.Sprintf("@%s  %s followers  %s", a.Username,
					numparse.Abbreviate(a.Followers), humanize.Time(a.VisitedAt))
			}
			fmt.Println(titleStyle.Render("recent accounts") + "\n" + strings.Join(lines, "\n"))
		}
		return nil
	},
}

var (
	prefSpeed  float64
	prefFilter string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Set the playback speed and view filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := launch.OpenStore()
		if err != nil {
			return err
		}
		defer st.Close()

		prefs, err := st.Preferences(ctx)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("speed") {
			if prefSpeed < 0.25 || prefSpeed > 4 {
				return fmt.Errorf("speed %g out of range 0.25-4", prefSpeed)
			}
			prefs.DefaultSpeed = prefSpeed
		}
		if cmd.Flags().Changed("filter") {
			r, err := metrics.ParseRange(prefFilter)
			if err != nil {
				return err
			}
			prefs.FilterRange = r.Name
		}
		if err := st.SetPreferences(ctx, prefs); err != nil {
			return err
		}
		fmt.Println(rows("preferences",
			"playback speed", fmt.Sprintf("%gx", prefs.DefaultSpeed),
			"view filter", prefs.FilterRange,
		))
		return nil
	},
}

func init() {
	prefsCmd.Flags().Float64Var(&prefSpeed, "speed", 1, "playback rate for single reels")
	prefsCmd.Flags().StringVar(&prefFilter, "filter", "all", "all, 1k-10k, 10k-100k, 100k-1m or 1m+")
	rootCmd.AddCommand(usageCmd, prefsCmd)
}
