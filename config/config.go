// Package config loads and saves the CLI demo's on-disk settings: the
// monitor's tuning knobs, the capture interface, and alert
// destinations.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Config holds the ratemon CLI demo's user-configurable defaults.
type Config struct {
	Type        string      `json:"type"` // "packets" or "bytes"
	Offset      int         `json:"offset"`
	Ratio       float64     `json:"ratio"`
	Threshold   int64       `json:"threshold"`
	MemMaxKiB   uint64      `json:"memmax_kib"`
	Annotate    bool        `json:"annotate"`
	Interface   string      `json:"interface"`
	FoldSeconds int         `json:"fold_seconds"`
	Alerts      AlertConfig `json:"alerts"`
}

// AlertConfig names the notify destinations the CLI demo wires into
// notify.Config at startup.
type AlertConfig struct {
	Webhook      string `json:"webhook"`
	Command      string `json:"command"`
	SlackWebhook string `json:"slack_webhook"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Type:        "packets",
		Offset:      0,
		Ratio:       1.0,
		Threshold:   1000,
		MemMaxKiB:   65536,
		Annotate:    false,
		Interface:   "eth0",
		FoldSeconds: 10,
		Alerts:      AlertConfig{},
	}
}

// Path returns ~/.config/ratemon/config.json (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // refuse to fall back to /tmp (security risk)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ratemon", "config.json")
}

// Load loads config from disk; returns defaults on error.
func Load() Config {
	cfg := Default()
	p := Path()
	if p == "" {
		return cfg
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("ratemon: warning: config parse error: %v", err)
	}
	return cfg
}

// Save writes the config to disk.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
