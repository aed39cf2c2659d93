package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/reelsort/internal/auth"
)

func authManager() (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(auth.NewCookieStore(path), cfg.Browser, logger), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Instagram in a browser window and keep the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authManager()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		if err := m.Login(ctx); err != nil {
			return err
		}
		fmt.Println("Logged in.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored Instagram session",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authManager()
		if err != nil {
			return err
		}
		if err := m.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
