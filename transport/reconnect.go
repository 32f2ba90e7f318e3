// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tether-collab/tether/lib/clock"
)

// ErrReconnectExhausted is returned when the attempt cap is reached
// without re-establishing a connection. This is the terminal
// disconnect signal: the session is over.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Reconnector retries a dropped client connection with a fixed delay
// up to a capped attempt count. Version, auth, and capacity
// rejections never reach the reconnector — those are terminal at the
// handshake layer; only unexplained drops are retried.
type Reconnector struct {
	// Dial opens one connection attempt. Typically a closure over a
	// Dialer and the session address.
	Dial func(ctx context.Context) (*Conn, error)

	// Address is used for logging only.
	Address string

	// Delay is the fixed wait before each attempt.
	Delay time.Duration

	// MaxAttempts caps the retry loop.
	MaxAttempts int

	Clock  clock.Clock
	Logger *slog.Logger

	// OnAttempt, when set, is called before each attempt with the
	// 1-based attempt number. This is the reconnect-progress surface
	// for the UI layer.
	OnAttempt func(attempt int)
}

// Reconnect runs the retry loop and returns the new connection, or
// ErrReconnectExhausted after the cap.
func (r *Reconnector) Reconnect(ctx context.Context) (*Conn, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.Clock.After(r.Delay):
		}

		if r.OnAttempt != nil {
			r.OnAttempt(attempt)
		}

		conn, err := r.Dial(ctx)
		if err == nil {
			logger.Info("reconnected", "address", r.Address, "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		logger.Warn("reconnect attempt failed",
			"address", r.Address, "attempt", attempt, "max", r.MaxAttempts, "error", err)
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, r.MaxAttempts, lastErr)
}
