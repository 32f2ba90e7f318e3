// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Load(path, true); err == nil {
		t.Fatal("required missing file loaded without error")
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if cfg.Listen != ":9876" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tether.yaml")
	contents := `
username: ada
listen: "127.0.0.1:7000"
passphrase: sesame
timing:
  heartbeatInterval: 1s
  reconnectMaxAttempts: 9
sync:
  coalesceWindow: 100ms
  historyLimit: 500
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Username != "ada" || cfg.Listen != "127.0.0.1:7000" || cfg.Passphrase != "sesame" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Timing.HeartbeatInterval != time.Second {
		t.Fatalf("heartbeatInterval = %v", cfg.Timing.HeartbeatInterval)
	}
	if cfg.Timing.ReconnectMaxAttempts != 9 {
		t.Fatalf("reconnectMaxAttempts = %d", cfg.Timing.ReconnectMaxAttempts)
	}
	if cfg.Sync.CoalesceWindow != 100*time.Millisecond {
		t.Fatalf("coalesceWindow = %v", cfg.Sync.CoalesceWindow)
	}
	if cfg.Sync.HistoryLimit != 500 {
		t.Fatalf("historyLimit = %d", cfg.Sync.HistoryLimit)
	}
	// Untouched knobs keep their defaults.
	if cfg.Timing.HandshakeTimeout != 10*time.Second {
		t.Fatalf("handshakeTimeout = %v", cfg.Timing.HandshakeTimeout)
	}
	if cfg.Sync.FetchTimeout != 10*time.Second {
		t.Fatalf("fetchTimeout = %v", cfg.Sync.FetchTimeout)
	}
}

func TestValidateRejectsNonsense(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero heartbeat", func(c *Config) { c.Timing.HeartbeatInterval = 0 }},
		{"negative delay", func(c *Config) { c.Timing.ReconnectDelay = -time.Second }},
		{"zero attempts", func(c *Config) { c.Timing.ReconnectMaxAttempts = 0 }},
		{"zero missed limit", func(c *Config) { c.Timing.HeartbeatMissedLimit = 0 }},
		{"zero coalesce window", func(c *Config) { c.Sync.CoalesceWindow = 0 }},
		{"zero history limit", func(c *Config) { c.Sync.HistoryLimit = 0 }},
		{"negative compression threshold", func(c *Config) { c.Sync.CompressionThreshold = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config validated")
			}
		})
	}
}
