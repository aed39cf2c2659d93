package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/reelsort/internal/diag"
	"github.com/ibeckermayer/reelsort/internal/launch"
	"github.com/ibeckermayer/reelsort/internal/page"
)

var (
	dumpPlans    bool
	requireLogin bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the feed and serve the in-page sort menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		p, closeBrowser, err := launch.Browser(ctx, cfg, logger, requireLogin)
		if err != nil {
			return err
		}
		defer closeBrowser()
		return serve(ctx, p, launch.Options{DumpPlans: dumpPlans}, false)
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the feed and drive it from a command prompt",
	Long: `console opens the feed like run and reads diagnostic commands from
stdin: collect-now, full-collect, test-sort [key] [all|seen], status, health,
dump, reset, cancel. Type help for the list and quit to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		p, closeBrowser, err := launch.Browser(ctx, cfg, logger, requireLogin)
		if err != nil {
			return err
		}
		defer closeBrowser()
		return serve(ctx, p, launch.Options{DumpPlans: dumpPlans}, true)
	},
}

// serve runs the controller on p until ctx ends, and the console on stdin
// when withConsole is set. Quitting the console stops the controller.
func serve(ctx context.Context, p page.Page, opts launch.Options, withConsole bool) error {
	env, err := launch.Open(cfg, p, logger, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return env.Controller.Run(ctx) })
	if withConsole {
		g.Go(func() error {
			defer cancel()
			return diag.New(env.Controller, logger).Run(ctx, os.Stdin, os.Stdout)
		})
	}
	return g.Wait()
}

func init() {
	for _, c := range []*cobra.Command{runCmd, consoleCmd} {
		c.Flags().BoolVar(&dumpPlans, "dump-plans", false, "save every applied sort plan to the cache dir")
		c.Flags().BoolVar(&requireLogin, "require-login", false, "fail instead of opening the feed logged out")
		rootCmd.AddCommand(c)
	}
}
