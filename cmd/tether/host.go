// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tether-collab/tether/docsync"
	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/session"
	"github.com/tether-collab/tether/transport"
	"github.com/tether-collab/tether/workspace"
)

func runHost(args []string) error {
	flags := pflag.NewFlagSet("tether host", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	listen := flags.StringP("listen", "l", "", "listen address (overrides config)")
	name := flags.StringP("name", "n", "", "username announced to the partner")
	dirPath := flags.StringP("dir", "d", ".", "directory to share")
	askPassphrase := flags.Bool("passphrase", false, "prompt for a session passphrase")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	logger := newLogger(*verbose)

	dir, err := workspace.OpenDir(*dirPath)
	if err != nil {
		return err
	}
	settings := dir.Settings()

	secret := cfg.Passphrase
	if *askPassphrase {
		if secret, err = promptPassphrase(); err != nil {
			return err
		}
	}
	var passphrase *session.Passphrase
	if secret != "" {
		if passphrase, err = session.NewPassphrase(secret); err != nil {
			return err
		}
	}

	clk := clock.Real()
	engine := docsync.NewHost(dir, logger)
	engine.HistoryLimit = cfg.Sync.HistoryLimit
	engine.CompressionThreshold = cfg.Sync.CompressionThreshold
	engine.OnApply = func(path string, content string, version int64, complete func()) {
		logger.Debug("document updated by partner", "path", path, "version", version)
		complete()
	}

	host := session.NewHost(session.HostConfig{
		Username:             resolveUsername(*name, cfg.Username),
		Passphrase:           passphrase,
		OpenPaths:            settings.OpenPaths,
		ReadonlyDefault:      settings.ReadonlyDefault,
		HandshakeTimeout:     cfg.Timing.HandshakeTimeout,
		HeartbeatInterval:    cfg.Timing.HeartbeatInterval,
		HeartbeatMissedLimit: cfg.Timing.HeartbeatMissedLimit,
		ReconnectGrace:       cfg.Timing.ReconnectGrace,
	}, engine, clk, logger)

	listener, err := transport.Listen(transport.EnsurePort(cfg.Listen), clk)
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Info("hosting workspace",
		"dir", dir.Root(),
		"listen", listener.Address(),
		"openPaths", settings.OpenPaths,
		"passphrase", passphrase != nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go logEvents(ctx, logger, host.Events())

	if err := host.Serve(ctx, listener); !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
