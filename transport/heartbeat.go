// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/wire"
)

// ErrHeartbeatExpired is returned by Heartbeat.Run when the peer
// missed too many consecutive pongs. The connection has already been
// forcibly closed when this surfaces.
var ErrHeartbeatExpired = errors.New("heartbeat expired")

// Heartbeat drives liveness probing from the connection owner's side:
// a ping every interval, and a forced close after missedLimit
// consecutive intervals without a pong.
//
// The session's receive loop must call Pong when a pong arrives;
// Heartbeat never reads from the connection itself.
type Heartbeat struct {
	conn        *Conn
	clock       clock.Clock
	interval    time.Duration
	missedLimit int
	logger      *slog.Logger

	// pongSeen is set by Pong and cleared at each tick.
	pongSeen atomic.Bool
}

// NewHeartbeat creates a heartbeat for conn. interval is the ping
// cadence; missedLimit is the number of consecutive silent intervals
// tolerated before the connection is declared dead.
func NewHeartbeat(conn *Conn, clk clock.Clock, interval time.Duration, missedLimit int, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		conn:        conn,
		clock:       clk,
		interval:    interval,
		missedLimit: missedLimit,
		logger:      logger,
	}
}

// Pong records that the peer answered. Safe to call from the receive
// loop goroutine.
func (h *Heartbeat) Pong() { h.pongSeen.Store(true) }

// Run pings until ctx is cancelled, the connection closes, or the
// peer goes silent. On expiry it closes the connection and returns
// ErrHeartbeatExpired.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	// The first tick has nothing to measure against; send the opening
	// ping immediately so the peer's first pong lands before it.
	if err := h.conn.Send(wire.TypePing, wire.PingPayload{}); err != nil {
		return err
	}

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.conn.Closed():
			return nil
		case <-ticker.C:
			if h.pongSeen.Swap(false) {
				missed = 0
			} else {
				missed++
				if missed >= h.missedLimit {
					h.logger.Warn("peer missed heartbeats, closing connection",
						"missed", missed, "interval", h.interval)
					h.conn.Close()
					return ErrHeartbeatExpired
				}
			}
			if err := h.conn.Send(wire.TypePing, wire.PingPayload{}); err != nil {
				// The receive loop will surface the dead stream; the
				// heartbeat's job is done.
				return err
			}
		}
	}
}
