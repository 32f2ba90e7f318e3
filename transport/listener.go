// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/tether-collab/tether/lib/clock"
)

// DefaultPort is the TCP port used when an address does not specify
// one.
const DefaultPort = 9876

// Listener accepts inbound session connections on the host side. The
// accept loop stays open for the whole host lifetime: even with an
// active session, additional connection attempts must be accepted so
// the negotiator can reject them with SESSION_FULL.
type Listener struct {
	listener net.Listener
	clock    clock.Clock
}

// Listen binds a TLS listener on the given address (host:port; use
// ":9876" or ":0" for a random port) with a freshly generated
// self-signed session certificate.
func Listen(address string, clk clock.Clock) (*Listener, error) {
	certificate, err := SelfSignedCertificate(clk.Now())
	if err != nil {
		return nil, err
	}

	listener, err := tls.Listen("tcp", address, serverTLSConfig(certificate))
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &Listener{listener: listener, clock: clk}, nil
}

// Accept blocks until the next inbound connection and wraps it as a
// Conn.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accepting connection: %w", err)
	}
	return NewConn(raw, l.clock), nil
}

// Address returns the bound address in host:port form.
func (l *Listener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the listener. Accept returns immediately after.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Dialer opens the client side of a session.
type Dialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration

	// Clock stamps outgoing envelopes on the resulting Conn. Nil
	// means the real clock.
	Clock clock.Clock
}

// DialContext opens a TLS connection to the host at address
// (host:port). The host's self-signed certificate is accepted
// without chain validation.
func (d *Dialer) DialContext(ctx context.Context, address string) (*Conn, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.Real()
	}

	netDialer := &net.Dialer{Timeout: d.Timeout}
	tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: clientTLSConfig()}
	raw, err := tlsDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return NewConn(raw, clk), nil
}

// EnsurePort appends the default port to an address that lacks one,
// so users can join with a bare hostname or IP.
func EnsurePort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, fmt.Sprintf("%d", DefaultPort))
}
