package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/dom"
	"github.com/ibeckermayer/reelsort/internal/launch"
	"github.com/ibeckermayer/reelsort/internal/page/memory"
	"github.com/ibeckermayer/reelsort/internal/store"
)

var (
	replayURL  string
	replaySort string
	replayOut  string
)

var replayCmd = &cobra.Command{
	Use:   "replay [file.html]",
	Short: "Run the engine over a saved page snapshot",
	Long: `replay loads a page saved with the console's dump command (the latest
one when no file is given) into an in-memory page. With --sort it applies one
variant and writes the sorted document; otherwise it opens the console on it.
Replays never count against the daily free sorts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			latest, err := store.LatestStepFile(store.StepSnapshot)
			if err != nil {
				return fmt.Errorf("no snapshot given and none saved: %w", err)
			}
			path = latest
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p, err := memory.New(string(raw), memory.WithURL(replayURL))
		if err != nil {
			return err
		}
		logger.Info("replaying", "file", path, "size", humanize.Bytes(uint64(len(raw))))

		ctx, stop := signalContext()
		defer stop()
		if replaySort == "" {
			return serve(ctx, p, launch.Options{Ungated: true}, true)
		}

		v, err := app.ParseVariant(replaySort)
		if err != nil {
			return err
		}
		env, err := launch.Open(cfg, p, logger, launch.Options{Ungated: true})
		if err != nil {
			return err
		}
		defer env.Close()
		res, err := env.Controller.Sort(ctx, v)
		if err != nil {
			return err
		}
		out, err := dom.StripMarks(p.HTML())
		if err != nil {
			return err
		}
		if replayOut == "" {
			fmt.Println(out)
		} else if err := os.WriteFile(replayOut, []byte(out), 0600); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, rows("replay "+v.Command(),
			"sorted", humanize.Comma(int64(res.Sorted)),
			"moved", humanize.Comma(int64(res.Moved)),
			"items", humanize.Comma(int64(res.Items)),
		))
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayURL, "url", "https://www.instagram.com/reels/", "location the snapshot was taken at")
	replayCmd.Flags().StringVar(&replaySort, "sort", "", "variant to apply, e.g. views:all or likes:seen")
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "write the sorted document here instead of stdout")
	rootCmd.AddCommand(replayCmd)
}
