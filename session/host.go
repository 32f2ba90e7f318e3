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

// ErrNoClient is returned for operations that need a connected
// client.
var ErrNoClient = errors.New("no connected client")

// HostConfig configures the hosting side of a session.
type HostConfig struct {
	// Username is announced to the client in the welcome.
	Username string

	// Passphrase, when non-nil, must be matched by every hello.
	Passphrase *Passphrase

	// OpenPaths are synced to the client as soon as it joins.
	OpenPaths []string

	// ReadonlyDefault withholds write access from a fresh client.
	ReadonlyDefault bool

	HandshakeTimeout     time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatMissedLimit int
	ReconnectGrace       time.Duration
}

func (c HostConfig) withDefaults() HostConfig {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatMissedLimit == 0 {
		c.HeartbeatMissedLimit = DefaultHeartbeatMissedLimit
	}
	if c.ReconnectGrace == 0 {
		c.ReconnectGrace = DefaultReconnectGrace
	}
	return c
}

// Host accepts and supervises one client at a time.
type Host struct {
	config HostConfig
	engine *docsync.Host
	clk    clock.Clock
	logger *slog.Logger
	events chan Event

	mu         sync.Mutex
	state      State
	active     *transport.Conn
	peerName   string
	graceTimer *clock.Timer
}

// NewHost creates a session host around a document engine.
func NewHost(config HostConfig, engine *docsync.Host, clk clock.Clock, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		config: config.withDefaults(),
		engine: engine,
		clk:    clk,
		logger: logger,
		events: make(chan Event, 16),
		state:  StateIdle,
	}
}

// Events delivers session lifecycle changes. The channel is never
// closed; events overflowing the buffer are dropped.
func (h *Host) Events() <-chan Event { return h.events }

func (h *Host) emit(event Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("dropping session event", "kind", event.Kind)
	}
}

// State returns the host's lifecycle position.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PeerName returns the connected client's username, or empty.
func (h *Host) PeerName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peerName
}

// SetClientWritable grants or revokes the client's write access. The
// engine is updated first: enforcement must not depend on the client
// honoring the access message.
func (h *Host) SetClientWritable(writable bool) error {
	h.mu.Lock()
	conn := h.active
	h.mu.Unlock()
	if conn == nil {
		return ErrNoClient
	}
	h.engine.SetWritable(writable)
	if err := conn.Send(wire.TypeAccess, wire.AccessPayload{Writable: writable}); err != nil {
		return fmt.Errorf("sending access change: %w", err)
	}
	h.emit(Event{Kind: EventAccessChanged, Writable: writable})
	return nil
}

// Serve accepts clients until ctx is cancelled or the listener
// fails. Only one client is ever active; late arrivals are rejected
// during their handshake.
func (h *Host) Serve(ctx context.Context, listener *transport.Listener) error {
	h.mu.Lock()
	h.state = StateListening
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go h.handleConn(ctx, conn)
	}
}

// handleConn runs one connection from handshake to teardown.
func (h *Host) handleConn(ctx context.Context, conn *transport.Conn) {
	hello, err := h.awaitHello(ctx, conn)
	if err != nil {
		h.logger.Warn("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	// Validation order is fixed: version, then passphrase, then
	// occupancy. A stale client learns about its version before its
	// passphrase, and never occupies the seat by failing later.
	if hello.ProtocolVersion != wire.ProtocolVersion {
		h.reject(conn, wire.CodeVersionMismatch,
			fmt.Sprintf("host speaks protocol %d, client %d", wire.ProtocolVersion, hello.ProtocolVersion))
		return
	}
	if h.config.Passphrase != nil && !h.config.Passphrase.Verify(hello.Passphrase) {
		h.reject(conn, wire.CodeAuthFailed, "passphrase does not match")
		return
	}

	h.mu.Lock()
	if h.active != nil {
		h.mu.Unlock()
		h.reject(conn, wire.CodeSessionFull, "session already has a connected client")
		return
	}
	h.active = conn
	h.peerName = hello.Username
	h.state = StateActive
	if h.graceTimer != nil {
		// The previous client made it back inside the grace window;
		// no departure is announced.
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
	h.mu.Unlock()

	if err := conn.Send(wire.TypeWelcome, wire.WelcomePayload{
		HostUsername:    h.config.Username,
		ProtocolVersion: wire.ProtocolVersion,
		OpenPaths:       h.config.OpenPaths,
		ReadonlyDefault: h.config.ReadonlyDefault,
	}); err != nil {
		h.logger.Warn("sending welcome", "error", err)
		h.teardown(conn, false)
		return
	}

	h.engine.Attach(conn, !h.config.ReadonlyDefault)
	for _, path := range h.config.OpenPaths {
		snapshot, err := h.engine.Open(path)
		if err != nil {
			h.logger.Warn("cannot open shared path", "path", path, "error", err)
			continue
		}
		if err := conn.Send(wire.TypeFullSync, snapshot); err != nil {
			h.logger.Warn("sending initial sync", "path", path, "error", err)
			break
		}
	}

	h.logger.Info("client joined", "username", hello.Username, "remote", conn.RemoteAddr())
	h.emit(Event{Kind: EventPartnerJoined, Peer: hello.Username})

	clean := h.runSession(ctx, conn)
	h.teardown(conn, clean)
}

type receiveResult struct {
	envelope wire.Envelope
	err      error
}

// awaitHello reads and validates the opening message within the
// handshake timeout.
func (h *Host) awaitHello(ctx context.Context, conn *transport.Conn) (wire.HelloPayload, error) {
	first := make(chan receiveResult, 1)
	go func() {
		envelope, err := conn.Receive()
		first <- receiveResult{envelope, err}
	}()

	select {
	case <-ctx.Done():
		return wire.HelloPayload{}, ctx.Err()
	case <-h.clk.After(h.config.HandshakeTimeout):
		return wire.HelloPayload{}, errors.New("timed out waiting for hello")
	case result := <-first:
		if result.err != nil {
			return wire.HelloPayload{}, fmt.Errorf("reading hello: %w", result.err)
		}
		if result.envelope.Type != wire.TypeHello {
			return wire.HelloPayload{}, fmt.Errorf("expected hello, got %q", result.envelope.Type)
		}
		var hello wire.HelloPayload
		if err := result.envelope.Decode(&hello); err != nil {
			return wire.HelloPayload{}, fmt.Errorf("decoding hello: %w", err)
		}
		return hello, nil
	}
}

// reject answers a hello with a terminal error and closes the
// connection.
func (h *Host) reject(conn *transport.Conn, code, message string) {
	h.logger.Info("rejecting client", "remote", conn.RemoteAddr(), "code", code)
	if err := conn.Send(wire.TypeError, wire.ErrorPayload{Code: code, Message: message}); err != nil {
		h.logger.Warn("sending rejection", "error", err)
	}
	conn.Close()
}

// runSession pumps the active connection until it dies. The return
// reports whether the client said bye first.
func (h *Host) runSession(ctx context.Context, conn *transport.Conn) (clean bool) {
	heartbeat := transport.NewHeartbeat(conn, h.clk, h.config.HeartbeatInterval, h.config.HeartbeatMissedLimit, h.logger)
	go heartbeat.Run(ctx)

	go func() {
		select {
		case <-ctx.Done():
			conn.Send(wire.TypeBye, wire.ByePayload{})
			conn.Close()
		case <-conn.Closed():
		}
	}()

	var sawBye bool
	mux := wire.NewMux(h.logger)
	mux.Handle(wire.TypePong, func(wire.Envelope) error {
		heartbeat.Pong()
		return nil
	})
	mux.Handle(wire.TypePing, func(wire.Envelope) error {
		return conn.Send(wire.TypePong, wire.PongPayload{})
	})
	mux.Handle(wire.TypeBye, func(wire.Envelope) error {
		sawBye = true
		conn.Close()
		return nil
	})
	mux.Handle(wire.TypeEdit, wire.Typed(func(_ wire.Envelope, payload wire.EditPayload) error {
		return h.engine.HandleEdit(payload)
	}))
	mux.Handle(wire.TypeOpen, wire.Typed(func(_ wire.Envelope, payload wire.OpenPayload) error {
		return h.engine.HandleOpen(payload)
	}))
	mux.Handle(wire.TypeClose, wire.Typed(func(_ wire.Envelope, payload wire.ClosePayload) error {
		return h.engine.HandleClose(payload)
	}))
	mux.Handle(wire.TypeSave, wire.Typed(func(_ wire.Envelope, payload wire.SavePayload) error {
		return h.engine.HandleSave(payload)
	}))
	mux.Handle(wire.TypeList, wire.Typed(func(_ wire.Envelope, payload wire.ListPayload) error {
		return h.engine.HandleList(payload)
	}))
	mux.Handle(wire.TypeFetch, wire.Typed(func(_ wire.Envelope, payload wire.FetchPayload) error {
		return h.engine.HandleFetch(payload)
	}))

	for {
		envelope, err := conn.Receive()
		if errors.Is(err, transport.ErrMalformedEnvelope) {
			h.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if err != nil {
			return sawBye
		}
		if err := mux.Dispatch(envelope); err != nil {
			h.logger.Warn("message handling failed", "type", envelope.Type, "error", err)
		}
	}
}

// teardown releases the seat and announces the departure — at once
// for a clean bye, after the grace window for an unexplained drop.
func (h *Host) teardown(conn *transport.Conn, clean bool) {
	conn.Close()
	h.engine.Detach()

	h.mu.Lock()
	if h.active != conn {
		h.mu.Unlock()
		return
	}
	h.active = nil
	h.state = StateListening
	peer := h.peerName

	if clean {
		h.peerName = ""
		h.mu.Unlock()
		h.logger.Info("client left", "username", peer)
		h.emit(Event{Kind: EventPartnerLeft, Peer: peer})
		return
	}

	h.logger.Info("client dropped, holding seat", "username", peer, "grace", h.config.ReconnectGrace)
	h.graceTimer = h.clk.AfterFunc(h.config.ReconnectGrace, func() {
		h.mu.Lock()
		expired := h.graceTimer != nil && h.active == nil
		h.graceTimer = nil
		if expired {
			h.peerName = ""
		}
		h.mu.Unlock()
		if expired {
			h.logger.Info("client did not return", "username", peer)
			h.emit(Event{Kind: EventPartnerLeft, Peer: peer})
		}
	})
	h.mu.Unlock()
}
