// Package tray is the menu bar surface: sort variants, restore and reset,
// report export, login state and config handling.
package tray

import (
	"context"
	"log/slog"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/auth"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/report"
	"github.com/ibeckermayer/reelsort/internal/sorting"
)

// Controller is the part of app.Controller the tray drives.
type Controller interface {
	Sort(ctx context.Context, v app.Variant) (*app.SortResult, error)
	Unsort(ctx context.Context) error
	Reset(ctx context.Context) error
	Dump(ctx context.Context) (app.DumpPaths, error)
	Collection() app.CollectionDump
	ReloadConfig(cfg *config.Config)
}

var _ Controller = (*app.Controller)(nil)

// Deps are the tray's collaborators.
type Deps struct {
	Controller Controller
	Auth       *auth.Manager
	Config     *config.Config
	Logger     *slog.Logger
	// Quit runs when the user picks Quit, before the tray exits.
	Quit func()
}

// OnReady returns a systray onReady callback that sets up the menu.
func OnReady(ctx context.Context, d Deps) func() {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "tray")
	cfg := d.Config

	return func() {
		ic := icon()
		systray.SetTemplateIcon(ic, ic)
		systray.SetTitle("")
		systray.SetTooltip("reelsort - sort the Reels feed")

		mAuthStatus := systray.AddMenuItem("", "Login status")
		mAuthStatus.Disable()
		mAuthAction := systray.AddMenuItem("", "Log in or out of Instagram")
		updateAuthUI := func() {
			if d.Auth.IsAuthenticated() {
				mAuthStatus.SetTitle("● Logged in to Instagram")
				mAuthAction.SetTitle("Logout")
			} else {
				mAuthStatus.SetTitle("○ Not logged in")
				mAuthAction.SetTitle("Login to Instagram")
			}
		}
		updateAuthUI()

		systray.AddSeparator()

		mSort := systray.AddMenuItem("Sort Feed", "Reorder the reels in the open feed")
		variants := app.Variants()
		sortItems := make([]*systray.MenuItem, len(variants))
		for i, v := range variants {
			sortItems[i] = mSort.AddSubMenuItem(v.Label(), v.Command())
		}
		mUnsort := systray.AddMenuItem("Restore Original Order", "Undo the last sort")
		mReset := systray.AddMenuItem("Reset Collection", "Restore the page and forget collected reels")

		systray.AddSeparator()

		mReport := systray.AddMenuItem("Open Report", "Rank the collected reels by views in the browser")
		mDump := systray.AddMenuItem("Save Snapshot", "Save the page and collection for replay")
		mEditConfig := systray.AddMenuItem("Edit Config", "Open config file in editor")
		mReloadConfig := systray.AddMenuItem("Reload Config", "Reload configuration from disk")

		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "Exit reelsort")

		for i, item := range sortItems {
			v := variants[i]
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-item.ClickedCh:
						// The controller reports the outcome in the page.
						go func() {
							if _, err := d.Controller.Sort(ctx, v); err != nil {
								log.Debug("sort from tray", "variant", v, "error", err)
							}
						}()
					}
				}
			}()
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return

				case <-mAuthAction.ClickedCh:
					if d.Auth.IsAuthenticated() {
						if err := d.Auth.Logout(); err != nil {
							log.Error("logout failed", "error", err)
						}
					} else if err := d.Auth.Login(ctx); err != nil {
						log.Error("login failed", "error", err)
					}
					updateAuthUI()

				case <-mUnsort.ClickedCh:
					go func() {
						if err := d.Controller.Unsort(ctx); err != nil {
							log.Error("restore failed", "error", err)
						}
					}()

				case <-mReset.ClickedCh:
					go func() {
						if err := d.Controller.Reset(ctx); err != nil {
							log.Error("reset failed", "error", err)
						}
					}()

				case <-mReport.ClickedCh:
					path, err := openReport(d.Controller.Collection(), cfg)
					if err != nil {
						log.Error("report failed", "error", err)
						continue
					}
					log.Info("report opened", "path", path)

				case <-mDump.ClickedCh:
					paths, err := d.Controller.Dump(ctx)
					if err != nil {
						log.Error("snapshot failed", "error", err)
						continue
					}
					log.Info("snapshot saved", "snapshot", paths.Snapshot, "collection", paths.Collection)

				case <-mEditConfig.ClickedCh:
					path, err := config.ConfigPath()
					if err != nil {
						log.Error("failed to get config path", "error", err)
						continue
					}
					if err := browser.OpenFile(path); err != nil {
						log.Error("failed to open config file", "error", err)
					}

				case <-mReloadConfig.ClickedCh:
					next, err := config.Load()
					if err != nil {
						log.Error("failed to reload config", "error", err)
						continue
					}
					cfg = next
					d.Controller.ReloadConfig(next)

				case <-mQuit.ClickedCh:
					if d.Quit != nil {
						d.Quit()
					}
					systray.Quit()
					return
				}
			}
		}()
	}
}

func openReport(dump app.CollectionDump, cfg *config.Config) (string, error) {
	b, err := report.New(cfg.Report.MaxItems, cfg.Sort.Followers, nil)
	if err != nil {
		return "", err
	}
	r, err := b.Build(dump.Items, sorting.Views, dump.URL)
	if err != nil {
		return "", err
	}
	path, err := report.Save(r, cfg.Report.OutputDir)
	if err != nil {
		return "", err
	}
	return path, report.Open(path)
}

// OnExit is the systray onExit callback.
func OnExit(log *slog.Logger) func() {
	return func() {
		log.Info("reelsort shutting down")
	}
}
