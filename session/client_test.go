// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tether-collab/tether/docsync"
	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/lib/testutil"
	"github.com/tether-collab/tether/transport"
	"github.com/tether-collab/tether/wire"
	"github.com/tether-collab/tether/workspace"
)

// scriptedDialer hands out pre-built connections one per attempt.
type scriptedDialer struct {
	conns    chan *transport.Conn
	attempts atomic.Int64
}

func (d *scriptedDialer) dial(ctx context.Context) (*transport.Conn, error) {
	d.attempts.Add(1)
	select {
	case conn := <-d.conns:
		return conn, nil
	default:
		return nil, errors.New("connection refused")
	}
}

func newTestSessionClient(t *testing.T, clk clock.Clock, dialer *scriptedDialer) *Client {
	t.Helper()
	engine := docsync.NewClient(workspace.NewMirror(), clk, nil)
	return NewClient(ClientConfig{
		Username: "ada",
		Address:  "host.local:9876",
	}, engine, dialer.dial, clk, nil)
}

// answerHello reads the hello on the host side and accepts it.
func answerHello(t *testing.T, conn *transport.Conn, readonly bool) wire.HelloPayload {
	t.Helper()
	envelope := readEnvelope(t, conn)
	if envelope.Type != wire.TypeHello {
		t.Fatalf("expected hello, got %q", envelope.Type)
	}
	var hello wire.HelloPayload
	if err := envelope.Decode(&hello); err != nil {
		t.Fatalf("Decode hello: %v", err)
	}
	if err := conn.Send(wire.TypeWelcome, wire.WelcomePayload{
		HostUsername:    "hoster",
		ProtocolVersion: wire.ProtocolVersion,
		ReadonlyDefault: readonly,
	}); err != nil {
		t.Fatalf("Send welcome: %v", err)
	}
	// The client requests the workspace listing as soon as the
	// session is up.
	if listing := readEnvelope(t, conn); listing.Type != wire.TypeList {
		t.Fatalf("expected list after welcome, got %q", listing.Type)
	}
	return hello
}

func TestClientHandshakeAndCleanBye(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide, clientSide := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 1)}
	dialer.conns <- clientSide
	client := newTestSessionClient(t, clk, dialer)

	done := make(chan error, 1)
	go func() { done <- client.Run(t.Context()) }()

	hello := answerHello(t, hostSide, false)
	if hello.Username != "ada" || hello.ProtocolVersion != wire.ProtocolVersion {
		t.Fatalf("hello = %+v", hello)
	}

	event := requireEvent(t, client.Events(), EventPartnerJoined)
	if event.Peer != "hoster" || !event.Writable {
		t.Fatalf("event = %+v", event)
	}
	if client.HostName() != "hoster" || client.State() != StateActive {
		t.Fatalf("client = %q, %v", client.HostName(), client.State())
	}

	// The host ends the session cleanly.
	hostSide.Send(wire.TypeBye, wire.ByePayload{})
	if err := testutil.RequireReceive(t, done, 5*time.Second, "run exit"); err != nil {
		t.Fatalf("Run = %v, want nil after bye", err)
	}
	requireEvent(t, client.Events(), EventSessionEnded)
}

func TestClientRejectionIsTerminal(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide, clientSide := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 1)}
	dialer.conns <- clientSide
	client := newTestSessionClient(t, clk, dialer)

	done := make(chan error, 1)
	go func() { done <- client.Run(t.Context()) }()

	readEnvelope(t, hostSide) // hello
	hostSide.Send(wire.TypeError, wire.ErrorPayload{
		Code: wire.CodeAuthFailed, Message: "passphrase does not match",
	})

	err := testutil.RequireReceive(t, done, 5*time.Second, "run exit")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Code != wire.CodeAuthFailed {
		t.Fatalf("Run = %v, want AUTH_FAILED rejection", err)
	}
	event := requireEvent(t, client.Events(), EventRejected)
	if event.Code != wire.CodeAuthFailed {
		t.Fatalf("event = %+v", event)
	}
	if client.State() != StateRejected {
		t.Fatalf("state = %v", client.State())
	}
	// No automatic retry after a rejection.
	if got := dialer.attempts.Load(); got != 1 {
		t.Fatalf("dial attempts = %d, want 1", got)
	}
}

func TestClientAnswersPings(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide, clientSide := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 1)}
	dialer.conns <- clientSide
	client := newTestSessionClient(t, clk, dialer)

	go client.Run(t.Context())
	answerHello(t, hostSide, false)
	requireEvent(t, client.Events(), EventPartnerJoined)

	hostSide.Send(wire.TypePing, wire.PingPayload{})
	if pong := readEnvelope(t, hostSide); pong.Type != wire.TypePong {
		t.Fatalf("reply = %q", pong.Type)
	}
}

func TestClientAppliesAccessChanges(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide, clientSide := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 1)}
	dialer.conns <- clientSide

	engine := docsync.NewClient(workspace.NewMirror(), clk, nil)
	client := NewClient(ClientConfig{Username: "ada", Address: "host.local:9876"},
		engine, dialer.dial, clk, nil)

	go client.Run(t.Context())
	answerHello(t, hostSide, true) // read-only session
	requireEvent(t, client.Events(), EventPartnerJoined)
	if engine.Writable() {
		t.Fatal("writable despite readonly default")
	}

	hostSide.Send(wire.TypeAccess, wire.AccessPayload{Writable: true})
	event := requireEvent(t, client.Events(), EventAccessChanged)
	if !event.Writable || !engine.Writable() {
		t.Fatal("grant not applied")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide1, clientSide1 := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 2)}
	dialer.conns <- clientSide1
	client := newTestSessionClient(t, clk, dialer)

	done := make(chan error, 1)
	go func() { done <- client.Run(t.Context()) }()

	answerHello(t, hostSide1, false)
	requireEvent(t, client.Events(), EventPartnerJoined)

	// The connection drops without a bye; the client retries after
	// its fixed delay.
	hostSide1.Close()
	waitUntil(t, "reconnect state", func() bool { return client.State() == StateConnecting })

	hostSide2, clientSide2 := pipePair(clk)
	dialer.conns <- clientSide2
	// One stale handshake-timeout waiter is still registered; the
	// second waiter is the reconnect delay.
	clk.WaitForTimers(2)
	clk.Advance(DefaultReconnectDelay)

	requireEvent(t, client.Events(), EventReconnecting)
	answerHello(t, hostSide2, false)
	requireEvent(t, client.Events(), EventPartnerJoined)
	if got := dialer.attempts.Load(); got != 2 {
		t.Fatalf("dial attempts = %d, want 2", got)
	}

	// Clean shutdown from our side.
	client.Leave()
	bye := readEnvelope(t, hostSide2)
	if bye.Type != wire.TypeBye {
		t.Fatalf("frame = %q", bye.Type)
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "run exit"); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestClientGivesUpAfterExhaustedReconnects(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(sessionEpoch)
	hostSide, clientSide := pipePair(clk)
	dialer := &scriptedDialer{conns: make(chan *transport.Conn, 1)}
	dialer.conns <- clientSide
	client := newTestSessionClient(t, clk, dialer)

	done := make(chan error, 1)
	go func() { done <- client.Run(t.Context()) }()

	answerHello(t, hostSide, false)
	requireEvent(t, client.Events(), EventPartnerJoined)

	hostSide.Close()
	waitUntil(t, "reconnect state", func() bool { return client.State() == StateConnecting })

	// Every attempt fails: the dialer has no more connections. The
	// stale handshake-timeout waiter accounts for the extra timer.
	for range DefaultReconnectMaxAttempts {
		clk.WaitForTimers(2)
		clk.Advance(DefaultReconnectDelay)
	}

	err := testutil.RequireReceive(t, done, 5*time.Second, "run exit")
	if !errors.Is(err, transport.ErrReconnectExhausted) {
		t.Fatalf("Run = %v, want ErrReconnectExhausted", err)
	}
}
