package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version"`
	Browser   BrowserConfig   `toml:"browser"`
	Collector CollectorConfig `toml:"collector"`
	Discover  DiscoverConfig  `toml:"discover"`
	Extract   ExtractConfig   `toml:"extract"`
	Sort      SortConfig      `toml:"sort"`
	Guard     GuardConfig     `toml:"guard"`
	License   LicenseConfig   `toml:"license"`
	Report    ReportConfig    `toml:"report"`
	Log       LogConfig       `toml:"log"`
}

type BrowserConfig struct {
	FeedURL      string `toml:"feed_url"`
	Headless     bool   `toml:"headless"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
	// ExecPath overrides the Chrome binary chromedp would pick.
	ExecPath string `toml:"exec_path"`
}

type CollectorConfig struct {
	ScrollFraction float64 `toml:"scroll_fraction"`
	SettleDelayMS  int     `toml:"settle_delay_ms"`
	StableRounds   int     `toml:"stable_rounds"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	VisibleMargin  float64 `toml:"visible_margin"`
}

type DiscoverConfig struct {
	MaxAncestorDepth int     `toml:"max_ancestor_depth"`
	MinWidth         float64 `toml:"min_width"`
	MinHeight        float64 `toml:"min_height"`
}

type ExtractConfig struct {
	ViewLeafIndices    []int    `toml:"view_leaf_indices"`
	StructuralPatterns []string `toml:"structural_patterns"`
}

type SortConfig struct {
	MinItems     int     `toml:"min_items"`
	RowTolerance float64 `toml:"row_tolerance"`
	// RandomSeed fixes the shuffle order; 0 seeds from the clock.
	RandomSeed uint64 `toml:"random_seed"`
	Followers  int64  `toml:"followers"`
}

type GuardConfig struct {
	SettleDelayMS     int `toml:"settle_delay_ms"`
	ReapplyIntervalMS int `toml:"reapply_interval_ms"`
	ReapplyBurst      int `toml:"reapply_burst"`
	MaxReapplies      int `toml:"max_reapplies"`
}

type LicenseConfig struct {
	Paid           bool   `toml:"paid"`
	FreeUsesPerDay int    `toml:"free_uses_per_day"`
	ResetSchedule  string `toml:"reset_schedule"`
}

type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	MaxItems  int    `toml:"max_items"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Browser: BrowserConfig{
			FeedURL:      "https://www.instagram.com/reels/",
			WindowWidth:  1280,
			WindowHeight: 900,
		},
		Collector: CollectorConfig{
			ScrollFraction: 0.8,
			SettleDelayMS:  800,
			StableRounds:   5,
			TimeoutSeconds: 90,
			VisibleMargin:  0.5,
		},
		Discover: DiscoverConfig{
			MaxAncestorDepth: 6,
			MinWidth:         40,
			MinHeight:        40,
		},
		Extract: ExtractConfig{
			ViewLeafIndices: []int{0, 1},
		},
		Sort: SortConfig{
			MinItems:     2,
			RowTolerance: 50,
		},
		Guard: GuardConfig{
			SettleDelayMS:     300,
			ReapplyIntervalMS: 100,
			ReapplyBurst:      10,
			MaxReapplies:      20,
		},
		License: LicenseConfig{
			FreeUsesPerDay: 3,
			ResetSchedule:  "0 0 * * *",
		},
		Report: ReportConfig{
			MaxItems: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c CollectorConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c CollectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c GuardConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c GuardConfig) ReapplyInterval() time.Duration {
	return time.Duration(c.ReapplyIntervalMS) * time.Millisecond
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "reelsort"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDirEnv overrides CacheDir when set.
const CacheDirEnv = "REELSORT_CACHE_DIR"

// CacheDir returns the directory for the database and step dumps
func CacheDir() (string, error) {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir, nil
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "reelsort"), nil
}

// Load reads config from disk. Keys missing from the file keep their
// defaults; a missing file yields Default().
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path
func (c *Config) SaveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
