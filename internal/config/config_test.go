package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collector.StableRounds != 5 || cfg.License.FreeUsesPerDay != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFilePartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[collector]
settle_delay_ms = 250

[extract]
view_leaf_indices = [2, 3]

[license]
paid = true
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Collector.SettleDelay(); got != 250*time.Millisecond {
		t.Errorf("settle delay = %v", got)
	}
	if cfg.Collector.StableRounds != 5 {
		t.Errorf("untouched key lost its default: %d", cfg.Collector.StableRounds)
	}
	if len(cfg.Extract.ViewLeafIndices) != 2 || cfg.Extract.ViewLeafIndices[0] != 2 {
		t.Errorf("indices = %v", cfg.Extract.ViewLeafIndices)
	}
	if !cfg.License.Paid {
		t.Error("paid not read")
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[collector]\nstable_round = 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("typo in key accepted")
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Sort.RandomSeed = 42
	if err := cfg.SaveFile(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sort.RandomSeed != 42 || got.Browser.FeedURL != cfg.Browser.FeedURL {
		t.Errorf("round trip lost values: %+v", got.Sort)
	}
}
