// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Command tether shares a live text workspace between two peers:
// `tether host` serves a directory, `tether join` connects to a host.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"

	"golang.org/x/term"

	"github.com/tether-collab/tether/config"
	"github.com/tether-collab/tether/lib/version"
	"github.com/tether-collab/tether/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "host":
		return runHost(args[1:])
	case "join":
		return runJoin(args[1:])
	case "version":
		fmt.Println(version.Full())
		return nil
	case "help", "-h", "--help":
		usage(os.Stdout)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: tether <command> [flags]

commands:
  host     share a directory and wait for a partner
  join     connect to a hosted workspace
  version  print version information

Run "tether <command> --help" for command flags.
`)
}

// newLogger builds the process logger: structured JSON to stderr.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config file: explicit flag first, then the
// environment variable, then defaults.
func loadConfig(flagPath string) (config.Config, error) {
	if flagPath != "" {
		return config.Load(flagPath, true)
	}
	if envPath := os.Getenv(config.EnvVar); envPath != "" {
		return config.Load(envPath, false)
	}
	return config.Default(), nil
}

// resolveUsername picks the announced username: flag, config, OS
// user, in that order.
func resolveUsername(flagName, configName string) string {
	if flagName != "" {
		return flagName
	}
	if configName != "" {
		return configName
	}
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	return "anonymous"
}

// promptPassphrase reads a passphrase from the terminal without
// echoing it.
func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(secret), nil
}

// logEvents reports session lifecycle changes on the logger until
// ctx ends.
func logEvents(ctx context.Context, logger *slog.Logger, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			switch event.Kind {
			case session.EventPartnerJoined:
				logger.Info("partner joined", "peer", event.Peer, "writable", event.Writable)
			case session.EventPartnerLeft:
				logger.Info("partner left", "peer", event.Peer)
			case session.EventReconnecting:
				logger.Info("reconnecting", "attempt", event.Attempt)
			case session.EventRejected:
				logger.Error("session rejected", "code", event.Code, "message", event.Message)
			case session.EventAccessChanged:
				logger.Info("write access changed", "writable", event.Writable)
			case session.EventSessionEnded:
				logger.Info("session ended", "peer", event.Peer, "message", event.Message)
			}
		}
	}
}
