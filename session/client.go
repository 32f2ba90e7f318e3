// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tether-collab/tether/docsync"
	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/transport"
	"github.com/tether-collab/tether/wire"
)

// DialFunc opens one connection to the host.
type DialFunc func(ctx context.Context) (*transport.Conn, error)

// ClientConfig configures the joining side of a session.
type ClientConfig struct {
	// Username is announced to the host in the hello.
	Username string

	// Workspace names the workspace the client expects to join.
	Workspace string

	// Address is the host address, for logging and events.
	Address string

	// Passphrase is sent with the hello when set.
	Passphrase string

	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	ReconnectMaxAttempts int
	WatchdogTimeout      time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.WatchdogTimeout == 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	return c
}

// Client joins a hosted session and supervises the connection:
// handshake, liveness, and capped reconnection after drops.
type Client struct {
	config ClientConfig
	engine *docsync.Client
	dial   DialFunc
	clk    clock.Clock
	logger *slog.Logger
	events chan Event

	mu       sync.Mutex
	state    State
	conn     *transport.Conn
	hostName string
	leaving  bool
}

// NewClient creates a session client around a document engine. dial
// is called for the initial connection and every reconnect attempt.
func NewClient(config ClientConfig, engine *docsync.Client, dial DialFunc, clk clock.Clock, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config.withDefaults(),
		engine: engine,
		dial:   dial,
		clk:    clk,
		logger: logger,
		events: make(chan Event, 16),
		state:  StateIdle,
	}
}

// Events delivers session lifecycle changes. The channel is never
// closed; events overflowing the buffer are dropped.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("dropping session event", "kind", event.Kind)
	}
}

// State returns the client's lifecycle position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// HostName returns the host's username, known after the welcome.
func (c *Client) HostName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostName
}

// Leave announces a clean departure and ends the session. Run
// returns nil afterwards.
func (c *Client) Leave() {
	c.mu.Lock()
	conn := c.conn
	c.leaving = true
	c.mu.Unlock()
	if conn != nil {
		if err := conn.Send(wire.TypeBye, wire.ByePayload{}); err != nil {
			c.logger.Warn("sending bye", "error", err)
		}
		conn.Close()
	}
}

// Run dials, handshakes, and supervises the session until it ends:
// a clean bye from either side (nil), a terminal rejection
// (*RejectionError), exhausted reconnects, or ctx cancellation.
func (c *Client) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateIdle)
		c.emit(Event{Kind: EventSessionEnded, Message: err.Error()})
		return fmt.Errorf("connecting to %s: %w", c.config.Address, err)
	}

	for {
		welcome, err := c.handshake(ctx, conn)
		if err != nil {
			conn.Close()
			var rejection *RejectionError
			if errors.As(err, &rejection) {
				c.setState(StateRejected)
				c.emit(Event{Kind: EventRejected, Code: rejection.Code, Message: rejection.Message})
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("handshake failed", "error", err)
		} else {
			c.mu.Lock()
			c.state = StateActive
			c.conn = conn
			c.hostName = welcome.HostUsername
			c.mu.Unlock()

			c.engine.Attach(conn, !welcome.ReadonlyDefault)
			c.emit(Event{Kind: EventPartnerJoined, Peer: welcome.HostUsername, Writable: !welcome.ReadonlyDefault})

			// After a reconnect the replicas are stale; re-subscribe
			// so the host pushes fresh snapshots. On first join this
			// is a no-op — the host pushes its open paths unasked.
			for _, path := range c.engine.OpenDocumentPaths() {
				if err := c.engine.OpenPath(path); err != nil {
					c.logger.Warn("re-subscribing after reconnect", "path", path, "error", err)
				}
			}

			// One listing at session start builds the browse tree.
			// Sent from its own goroutine: the host may still be
			// flushing the initial snapshots before it starts reading.
			go func() {
				if err := c.engine.RequestList(); err != nil {
					c.logger.Warn("requesting workspace listing", "error", err)
				}
			}()

			clean := c.runSession(ctx, conn)
			c.engine.Detach()
			conn.Close()
			c.mu.Lock()
			c.conn = nil
			leaving := c.leaving
			host := c.hostName
			c.mu.Unlock()

			if clean || leaving {
				c.setState(StateIdle)
				c.emit(Event{Kind: EventSessionEnded, Peer: host})
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		c.setState(StateConnecting)
		reconnector := &transport.Reconnector{
			Dial:        c.dial,
			Address:     c.config.Address,
			Delay:       c.config.ReconnectDelay,
			MaxAttempts: c.config.ReconnectMaxAttempts,
			Clock:       c.clk,
			Logger:      c.logger,
			OnAttempt: func(attempt int) {
				c.emit(Event{Kind: EventReconnecting, Attempt: attempt})
			},
		}
		conn, err = reconnector.Reconnect(ctx)
		if err != nil {
			c.setState(StateIdle)
			c.emit(Event{Kind: EventSessionEnded, Message: err.Error()})
			return err
		}
	}
}

// handshake sends the hello and waits for the verdict.
func (c *Client) handshake(ctx context.Context, conn *transport.Conn) (wire.WelcomePayload, error) {
	c.setState(StateHandshaking)

	if err := conn.Send(wire.TypeHello, wire.HelloPayload{
		Username:        c.config.Username,
		Workspace:       c.config.Workspace,
		ProtocolVersion: wire.ProtocolVersion,
		Passphrase:      c.config.Passphrase,
	}); err != nil {
		return wire.WelcomePayload{}, fmt.Errorf("sending hello: %w", err)
	}

	first := make(chan receiveResult, 1)
	go func() {
		envelope, err := conn.Receive()
		first <- receiveResult{envelope, err}
	}()

	select {
	case <-ctx.Done():
		return wire.WelcomePayload{}, ctx.Err()
	case <-c.clk.After(c.config.HandshakeTimeout):
		return wire.WelcomePayload{}, errors.New("timed out waiting for welcome")
	case result := <-first:
		if result.err != nil {
			return wire.WelcomePayload{}, fmt.Errorf("reading welcome: %w", result.err)
		}
		switch result.envelope.Type {
		case wire.TypeWelcome:
			var welcome wire.WelcomePayload
			if err := result.envelope.Decode(&welcome); err != nil {
				return wire.WelcomePayload{}, fmt.Errorf("decoding welcome: %w", err)
			}
			return welcome, nil
		case wire.TypeError:
			var refusal wire.ErrorPayload
			if err := result.envelope.Decode(&refusal); err != nil {
				return wire.WelcomePayload{}, fmt.Errorf("decoding rejection: %w", err)
			}
			return wire.WelcomePayload{}, &RejectionError{Code: refusal.Code, Message: refusal.Message}
		default:
			return wire.WelcomePayload{}, fmt.Errorf("expected welcome, got %q", result.envelope.Type)
		}
	}
}

// runSession pumps the active connection until it dies. The return
// reports whether the host said bye first.
func (c *Client) runSession(ctx context.Context, conn *transport.Conn) (clean bool) {
	// The host pings on a fixed cadence; total silence for longer
	// than the watchdog window means the connection is dead even if
	// the socket has not noticed.
	watchdog := c.clk.AfterFunc(c.config.WatchdogTimeout, func() {
		c.logger.Warn("connection silent too long, forcing reconnect",
			"timeout", c.config.WatchdogTimeout)
		conn.Close()
	})
	defer watchdog.Stop()

	go func() {
		select {
		case <-ctx.Done():
			conn.Send(wire.TypeBye, wire.ByePayload{})
			conn.Close()
		case <-conn.Closed():
		}
	}()

	var sawBye bool
	mux := wire.NewMux(c.logger)
	mux.Handle(wire.TypePing, func(wire.Envelope) error {
		return conn.Send(wire.TypePong, wire.PongPayload{})
	})
	mux.Handle(wire.TypeBye, func(wire.Envelope) error {
		sawBye = true
		conn.Close()
		return nil
	})
	mux.Handle(wire.TypeEdit, wire.Typed(func(_ wire.Envelope, payload wire.EditPayload) error {
		return c.engine.HandleEdit(payload)
	}))
	mux.Handle(wire.TypeEditAck, wire.Typed(func(_ wire.Envelope, payload wire.EditAckPayload) error {
		return c.engine.HandleEditAck(payload)
	}))
	mux.Handle(wire.TypeFullSync, wire.Typed(func(_ wire.Envelope, payload wire.FullSyncPayload) error {
		return c.engine.HandleFullSync(payload)
	}))
	mux.Handle(wire.TypeSaveAck, wire.Typed(func(_ wire.Envelope, payload wire.SaveAckPayload) error {
		return c.engine.HandleSaveAck(payload)
	}))
	mux.Handle(wire.TypeListing, wire.Typed(func(_ wire.Envelope, payload wire.ListingPayload) error {
		return c.engine.HandleListing(payload)
	}))
	mux.Handle(wire.TypeFetchResult, wire.Typed(func(_ wire.Envelope, payload wire.FetchResultPayload) error {
		return c.engine.HandleFetchResult(payload)
	}))
	mux.Handle(wire.TypeAccess, wire.Typed(func(_ wire.Envelope, payload wire.AccessPayload) error {
		c.engine.SetWritable(payload.Writable)
		c.emit(Event{Kind: EventAccessChanged, Writable: payload.Writable})
		return nil
	}))

	for {
		envelope, err := conn.Receive()
		if errors.Is(err, transport.ErrMalformedEnvelope) {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if err != nil {
			return sawBye
		}
		watchdog.Reset(c.config.WatchdogTimeout)
		if err := mux.Dispatch(envelope); err != nil {
			c.logger.Warn("message handling failed", "type", envelope.Type, "error", err)
		}
	}
}
