// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tether-collab/tether/docsync"
	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/session"
	"github.com/tether-collab/tether/transport"
	"github.com/tether-collab/tether/workspace"
)

func runJoin(args []string) error {
	flags := pflag.NewFlagSet("tether join", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	name := flags.StringP("name", "n", "", "username announced to the host")
	askPassphrase := flags.Bool("passphrase", false, "prompt for the session passphrase")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: tether join [flags] <host-address>")
	}
	address := transport.EnsurePort(flags.Arg(0))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)

	secret := cfg.Passphrase
	if *askPassphrase {
		if secret, err = promptPassphrase(); err != nil {
			return err
		}
	}

	clk := clock.Real()
	mirror := workspace.NewMirror()
	engine := docsync.NewClient(mirror, clk, logger)
	engine.CoalesceWindow = cfg.Sync.CoalesceWindow
	engine.FetchTimeout = cfg.Sync.FetchTimeout
	engine.OnApply = func(path string, content string, version int64, complete func()) {
		logger.Debug("document updated by partner", "path", path, "version", version)
		complete()
	}
	engine.OnSaveResult = func(path string, ok bool, message string) {
		if ok {
			logger.Info("saved on host", "path", path)
		} else {
			logger.Warn("save failed on host", "path", path, "message", message)
		}
	}

	dialer := &transport.Dialer{Timeout: 10 * time.Second, Clock: clk}
	dial := func(ctx context.Context) (*transport.Conn, error) {
		return dialer.DialContext(ctx, address)
	}

	client := session.NewClient(session.ClientConfig{
		Username:             resolveUsername(*name, cfg.Username),
		Address:              address,
		Passphrase:           secret,
		HandshakeTimeout:     cfg.Timing.HandshakeTimeout,
		ReconnectDelay:       cfg.Timing.ReconnectDelay,
		ReconnectMaxAttempts: cfg.Timing.ReconnectMaxAttempts,
	}, engine, dial, clk, logger)

	logger.Info("joining workspace", "address", address)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go logEvents(ctx, logger, client.Events())

	err = client.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("left session")
		return nil
	default:
		var rejection *session.RejectionError
		if errors.As(err, &rejection) {
			return fmt.Errorf("host refused the session: %s", rejection.Message)
		}
		return err
	}
}
