package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/getlantern/systray"

	"github.com/ibeckermayer/reelsort/internal/auth"
	"github.com/ibeckermayer/reelsort/internal/config"
	"github.com/ibeckermayer/reelsort/internal/launch"
	"github.com/ibeckermayer/reelsort/internal/logging"
	"github.com/ibeckermayer/reelsort/internal/tray"
)

func main() {
	cfg := loadConfig()
	logger := logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cookiePath, err := auth.DefaultCookieStorePath()
	if err != nil {
		logger.Error("failed to get cookie store path", "error", err)
		os.Exit(1)
	}
	authManager := auth.NewManager(auth.NewCookieStore(cookiePath), cfg.Browser, logger)

	p, closeBrowser, err := launch.Browser(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("failed to open the feed", "error", err)
		os.Exit(1)
	}
	defer closeBrowser()

	env, err := launch.Open(cfg, p, logger, launch.Options{})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	go func() {
		if err := env.Controller.Run(ctx); err != nil {
			logger.Error("controller stopped", "error", err)
		}
		systray.Quit()
	}()

	logger.Info("reelsort starting", "feed", cfg.Browser.FeedURL)

	// Run systray (blocks until Quit)
	systray.Run(tray.OnReady(ctx, tray.Deps{
		Controller: env.Controller,
		Auth:       authManager,
		Config:     cfg,
		Logger:     logger,
		Quit:       cancel,
	}), tray.OnExit(logger))
}

// loadConfig reads the config file, writing the defaults on first run.
func loadConfig() *config.Config {
	path, err := config.ConfigPath()
	if err != nil {
		slog.Warn("could not resolve config path, using defaults", "error", err)
		return config.Default()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := config.Default()
		if err := cfg.Save(); err != nil {
			slog.Warn("could not save default config", "error", err)
		} else {
			slog.Info("created default config", "path", path)
		}
		return cfg
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		slog.Warn("could not load config, using defaults", "error", err)
		return config.Default()
	}
	return cfg
}
