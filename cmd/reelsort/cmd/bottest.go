package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/browser"
)

// BotTestURL audits the browser fingerprint.
const BotTestURL = "https://bot.sannysoft.com"

var botTestCmd = &cobra.Command{
	Use:   "bot-test",
	Short: "Open bot.sannysoft.com with the feed's browser options",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		headful := false
		tab, cancel := browser.NewContext(ctx, cfg.Browser, &headful)
		defer cancel()

		logger.Info("opening fingerprint audit", "url", BotTestURL)
		if err := chromedp.Run(tab,
			chromedp.Navigate(BotTestURL),
			chromedp.WaitVisible("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}

		fmt.Println("Press Enter to close the browser...")
		done := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(botTestCmd)
}
