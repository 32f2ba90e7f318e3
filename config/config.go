// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the tether configuration: one YAML file, no
// discovery, no hidden overrides. The path comes from the --config
// flag or the TETHER_CONFIG environment variable; without either,
// defaults apply.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tether-collab/tether/docsync"
)

// EnvVar names the environment variable consulted for the config
// file path when --config is not given.
const EnvVar = "TETHER_CONFIG"

// Config is the complete tether configuration.
type Config struct {
	// Username announced to the session peer. Defaults to the OS
	// user when empty.
	Username string `yaml:"username"`

	// Listen is the host's listen address. A bare port like ":9876"
	// listens on all interfaces.
	Listen string `yaml:"listen"`

	// Passphrase protects hosted sessions when non-empty. Kept in
	// cleartext here; the file is the user's own.
	Passphrase string `yaml:"passphrase"`

	Timing Timing `yaml:"timing"`

	Sync Sync `yaml:"sync"`
}

// Timing holds the protocol timing knobs. Zero values are replaced
// by defaults at load time.
type Timing struct {
	// HandshakeTimeout bounds the wait for the peer's first
	// handshake message.
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`

	// HeartbeatInterval is the host's ping cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// HeartbeatMissedLimit is how many silent intervals are
	// tolerated before the peer is declared gone.
	HeartbeatMissedLimit int `yaml:"heartbeatMissedLimit"`

	// ReconnectDelay is the fixed wait between client reconnect
	// attempts.
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`

	// ReconnectMaxAttempts caps the client reconnect loop.
	ReconnectMaxAttempts int `yaml:"reconnectMaxAttempts"`

	// ReconnectGrace is how long the host withholds the
	// partner-left announcement after an unexplained drop.
	ReconnectGrace time.Duration `yaml:"reconnectGrace"`
}

// Sync holds the document synchronization knobs. Zero values are
// replaced by defaults at load time.
type Sync struct {
	// CoalesceWindow is how long a local edit waits for followups
	// before its batch is sent to the host.
	CoalesceWindow time.Duration `yaml:"coalesceWindow"`

	// FetchTimeout bounds an on-demand content fetch; on expiry the
	// fetch resolves to empty content.
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	// HistoryLimit is how many committed operations the host retains
	// per document for rebasing stale client batches.
	HistoryLimit int `yaml:"historyLimit"`

	// CompressionThreshold is the snapshot size in bytes above which
	// full-sync content is compressed.
	CompressionThreshold int `yaml:"compressionThreshold"`
}

// Default returns a configuration that works for development out of
// the box.
func Default() Config {
	return Config{
		Listen: ":9876",
		Timing: Timing{
			HandshakeTimeout:     10 * time.Second,
			HeartbeatInterval:    5 * time.Second,
			HeartbeatMissedLimit: 3,
			ReconnectDelay:       2 * time.Second,
			ReconnectMaxAttempts: 5,
			ReconnectGrace:       3 * time.Second,
		},
		Sync: Sync{
			CoalesceWindow:       docsync.DefaultCoalesceWindow,
			FetchTimeout:         docsync.DefaultFetchTimeout,
			HistoryLimit:         docsync.DefaultHistoryLimit,
			CompressionThreshold: docsync.DefaultCompressionThreshold,
		},
	}
}

// Load reads the configuration at path, layered over the defaults. A
// missing path is not an error when it came from the environment
// fallback — pass required=false for that case.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	t := c.Timing
	switch {
	case t.HandshakeTimeout <= 0:
		return errors.New("handshakeTimeout must be positive")
	case t.HeartbeatInterval <= 0:
		return errors.New("heartbeatInterval must be positive")
	case t.HeartbeatMissedLimit <= 0:
		return errors.New("heartbeatMissedLimit must be positive")
	case t.ReconnectDelay <= 0:
		return errors.New("reconnectDelay must be positive")
	case t.ReconnectMaxAttempts <= 0:
		return errors.New("reconnectMaxAttempts must be positive")
	case t.ReconnectGrace < 0:
		return errors.New("reconnectGrace must not be negative")
	}
	s := c.Sync
	switch {
	case s.CoalesceWindow <= 0:
		return errors.New("coalesceWindow must be positive")
	case s.FetchTimeout <= 0:
		return errors.New("fetchTimeout must be positive")
	case s.HistoryLimit <= 0:
		return errors.New("historyLimit must be positive")
	case s.CompressionThreshold < 0:
		return errors.New("compressionThreshold must not be negative")
	}
	return nil
}
