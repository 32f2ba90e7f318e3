// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/wire"
)

// maxFrameSize is the maximum size of a single envelope frame.
// 16 MiB is generous for a full-document snapshot; anything larger
// indicates a broken or hostile peer.
const maxFrameSize = 16 * 1024 * 1024

// ErrMalformedEnvelope marks a frame that was not valid envelope
// JSON. The receive loop logs and drops these without closing the
// connection; test with errors.Is.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Conn frames wire envelopes over a net.Conn as newline-delimited
// UTF-8 JSON. Sends are serialized by an internal mutex so the
// session loop and the heartbeat can share the connection; reads
// must come from a single goroutine.
type Conn struct {
	raw     net.Conn
	scanner *bufio.Scanner
	clock   clock.Clock

	writeMu sync.Mutex
	seq     atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an established network connection. The clock stamps
// outgoing envelope timestamps.
func NewConn(raw net.Conn, clk clock.Clock) *Conn {
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Conn{
		raw:     raw,
		scanner: scanner,
		clock:   clk,
		closed:  make(chan struct{}),
	}
}

// Send encodes payload into an envelope of the given type, stamps it
// with the next sequence number and the current time, and writes one
// frame.
func (c *Conn) Send(messageType string, payload any) error {
	envelope, err := wire.NewEnvelope(messageType, c.clock.Now(), payload)
	if err != nil {
		return err
	}
	return c.SendEnvelope(envelope)
}

// SendEnvelope writes a pre-built envelope, assigning its sequence
// number.
func (c *Conn) SendEnvelope(envelope wire.Envelope) error {
	envelope.Seq = c.seq.Add(1)

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.raw.Write(data); err != nil {
		return fmt.Errorf("writing %s frame: %w", envelope.Type, err)
	}
	return nil
}

// Receive reads the next envelope. A frame that is not valid envelope
// JSON returns an error wrapping [ErrMalformedEnvelope]; the caller
// should log it and keep reading. Any other error means the stream is
// gone.
func (c *Conn) Receive() (wire.Envelope, error) {
	for {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return wire.Envelope{}, fmt.Errorf("reading frame: %w", err)
			}
			return wire.Envelope{}, fmt.Errorf("reading frame: %w", net.ErrClosed)
		}
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var envelope wire.Envelope
		if err := json.Unmarshal(line, &envelope); err != nil {
			return wire.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if envelope.Type == "" {
			return wire.Envelope{}, fmt.Errorf("%w: missing type tag", ErrMalformedEnvelope)
		}
		return envelope, nil
	}
}

// Close tears down the underlying connection. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.raw.Close()
	})
	return err
}

// Closed returns a channel that is closed when Close has been called.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
