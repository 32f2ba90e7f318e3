// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/lib/testutil"
	"github.com/tether-collab/tether/wire"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// connPair returns two framed connections joined by an in-memory
// pipe, both on the same fake clock.
func connPair(c clock.Clock) (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a, c), NewConn(b, c)
}

func TestConnSendReceive(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(testEpoch)
	sender, receiver := connPair(clk)
	defer sender.Close()
	defer receiver.Close()

	go func() {
		sender.Send(wire.TypeHello, wire.HelloPayload{
			Username:        "ada",
			ProtocolVersion: wire.ProtocolVersion,
		})
	}()

	envelope, err := receiver.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if envelope.Type != wire.TypeHello {
		t.Fatalf("type = %q", envelope.Type)
	}
	if envelope.Seq != 1 {
		t.Fatalf("seq = %d, want 1", envelope.Seq)
	}
	if envelope.Timestamp != testEpoch.UnixMilli() {
		t.Fatalf("timestamp = %d", envelope.Timestamp)
	}

	var hello wire.HelloPayload
	if err := envelope.Decode(&hello); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if hello.Username != "ada" {
		t.Fatalf("payload = %+v", hello)
	}
}

func TestConnSequenceNumbersIncrease(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(testEpoch)
	sender, receiver := connPair(clk)
	defer sender.Close()
	defer receiver.Close()

	go func() {
		for range 3 {
			sender.Send(wire.TypePing, wire.PingPayload{})
		}
	}()

	for want := int64(1); want <= 3; want++ {
		envelope, err := receiver.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if envelope.Seq != want {
			t.Fatalf("seq = %d, want %d", envelope.Seq, want)
		}
	}
}

func TestConnMalformedFrameIsRecoverable(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(testEpoch)
	a, b := net.Pipe()
	receiver := NewConn(b, clk)
	defer a.Close()
	defer receiver.Close()

	go func() {
		a.Write([]byte("this is not json\n"))
		a.Write([]byte(`{"type":"ping","seq":1,"timestamp":0,"payload":{}}` + "\n"))
	}()

	_, err := receiver.Receive()
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("first Receive error = %v, want ErrMalformedEnvelope", err)
	}

	// The stream survives: the next frame decodes normally.
	envelope, err := receiver.Receive()
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if envelope.Type != wire.TypePing {
		t.Fatalf("type = %q", envelope.Type)
	}
}

func TestConnMissingTypeIsMalformed(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(testEpoch)
	a, b := net.Pipe()
	receiver := NewConn(b, clk)
	defer a.Close()
	defer receiver.Close()

	go a.Write([]byte(`{"seq":1,"timestamp":0,"payload":{}}` + "\n"))

	if _, err := receiver.Receive(); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("Receive error = %v, want ErrMalformedEnvelope", err)
	}
}

func TestConnReceiveAfterPeerClose(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(testEpoch)
	sender, receiver := connPair(clk)
	defer receiver.Close()

	sender.Close()
	if _, err := receiver.Receive(); err == nil {
		t.Fatal("Receive on a closed stream succeeded")
	}
}

func TestListenDialLoopback(t *testing.T) {
	t.Parallel()

	clk := clock.Real()
	listener, err := Listen("127.0.0.1:0", clk)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	dialer := &Dialer{Timeout: 5 * time.Second, Clock: clk}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := dialer.DialContext(ctx, listener.Address())
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer client.Close()

	go client.Send(wire.TypeHello, wire.HelloPayload{Username: "ada", ProtocolVersion: wire.ProtocolVersion})

	server := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for accept")
	defer server.Close()

	envelope, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive over TLS: %v", err)
	}
	if envelope.Type != wire.TypeHello {
		t.Fatalf("type = %q", envelope.Type)
	}
}

func TestEnsurePort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"192.168.1.10", "192.168.1.10:9876"},
		{"192.168.1.10:7000", "192.168.1.10:7000"},
		{"workstation", "workstation:9876"},
		{"workstation:9876", "workstation:9876"},
	}
	for _, tc := range cases {
		if got := EnsurePort(tc.in); got != tc.want {
			t.Errorf("EnsurePort(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
