package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/logging"
)

var (
	configPath string
	logLevel   string
	headless   bool

	cfg    *config.Config
	logger *slog.Logger
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
)

var rootCmd = &cobra.Command{
	Use:   "reelsort",
	Short: "Sort the Instagram Reels feed",
	Long: `reelsort opens the Reels feed in Chrome, collects the reels it shows and
reorders them in place by views, likes, comments, engagement, recency or at
random. Use the floating Sort button in the page, or the console command to
drive it from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = headless
		}
		logger = logging.New(cfg.Log, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "run Chrome without a window")
}

// signalContext is cancelled on interrupt or terminate.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// rows renders aligned key/value pairs under a title.
func rows(title string, kv ...string) string {
	out := titleStyle.Render(title)
	for i := 0; i+1 < len(kv); i += 2 {
		out += "\n" + keyStyle.Render(kv[i]) + kv[i+1]
	}
	return out
}
