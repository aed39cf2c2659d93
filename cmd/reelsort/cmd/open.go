package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/report"
	"github.com/ibeckermayer/reelsort/internal/store"
)

var openCmd = &cobra.Command{
	Use:       "open <config|cache|snapshots|report>",
	Short:     "Open the config file, a cache directory or the latest report",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"config", "cache", "snapshots", "report"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			path string
			err  error
		)
		switch args[0] {
		case "config":
			path, err = config.ConfigPath()
			if err == nil {
				err = ensureConfig(path)
			}
		case "cache":
			path, err = config.CacheDir()
			if err == nil {
				err = os.MkdirAll(path, 0700)
			}
		case "snapshots":
			path, err = store.StepDir(store.StepSnapshot)
			if err == nil {
				err = os.MkdirAll(path, 0755)
			}
		case "report":
			path, err = report.Latest()
		default:
			return fmt.Errorf("unknown target: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		return browser.OpenFile(path)
	},
}

// ensureConfig writes the defaults to path on first use so there is a file
// to edit.
func ensureConfig(path string) error {
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := config.Default().Save(); err != nil {
		return err
	}
	logger.Info("created default config", "path", path)
	return nil
}

func init() {
	rootCmd.AddCommand(openCmd)
}
