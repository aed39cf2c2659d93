package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/report"
	"github.com/ibeckermayer/reelsort/internal/sorting"
	"github.com/ibeckermayer/reelsort/internal/store"
)

var (
	exportKey    string
	exportNoOpen bool
)

var exportCmd = &cobra.Command{
	Use:   "export [collection.json]",
	Short: "Render a saved collection as a ranked HTML report",
	Long: `export reads a collection saved by the console's dump command (the
latest one when no file is given), ranks it by --key and writes an HTML report
to report.output_dir, or the cache dir when that is unset.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := sorting.ParseKey(exportKey)
		if err != nil {
			return err
		}

		var (
			dump app.CollectionDump
			path string
		)
		if len(args) == 1 {
			path = args[0]
			dump, err = store.LoadStepOutput[app.CollectionDump](path)
		} else {
			dump, path, err = store.LoadLatestStepOutput[app.CollectionDump](store.StepCollection)
		}
		if err != nil {
			return fmt.Errorf("load collection: %w", err)
		}
		logger.Debug("loaded collection", "path", path, "items", len(dump.Items))

		out, err := buildReport(dump, key)
		if err != nil {
			return err
		}
		fmt.Println(out)
		if exportNoOpen {
			return nil
		}
		return report.Open(out)
	},
}

func buildReport(dump app.CollectionDump, key sorting.Key) (string, error) {
	b, err := report.New(cfg.Report.MaxItems, cfg.Sort.Followers, sorting.New(sorting.Options{
		MinItems:     cfg.Sort.MinItems,
		RowTolerance: cfg.Sort.RowTolerance,
	}))
	if err != nil {
		return "", err
	}
	r, err := b.Build(dump.Items, key, dump.URL)
	if err != nil {
		return "", err
	}
	return report.Save(r, cfg.Report.OutputDir)
}

func init() {
	exportCmd.Flags().StringVarP(&exportKey, "key", "k", "views", "views, likes, comments, engagement, recency or random")
	exportCmd.Flags().BoolVar(&exportNoOpen, "no-open", false, "only print the report path")
	rootCmd.AddCommand(exportCmd)
}
