// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"log/slog"
)

// HandlerFunc processes one decoded envelope.
type HandlerFunc func(Envelope) error

// Mux routes envelopes to handlers by message type tag. One handler
// per type, registered before dispatch starts. Unknown types are
// logged and dropped: a peer speaking a newer dialect must not kill
// the session.
//
// Mux is not safe for concurrent registration; register everything
// during setup, then dispatch from the single receive loop.
type Mux struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewMux creates an empty mux. If logger is nil, slog.Default() is
// used.
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers a handler for the given message type. Panics on a
// duplicate registration — that is a wiring bug, not a runtime
// condition.
func (m *Mux) Handle(messageType string, handler HandlerFunc) {
	if _, exists := m.handlers[messageType]; exists {
		panic(fmt.Sprintf("wire.Mux: duplicate handler for message type %q", messageType))
	}
	m.handlers[messageType] = handler
}

// Dispatch routes one envelope. A handler error is returned to the
// caller; an unknown message type is logged and dropped.
func (m *Mux) Dispatch(envelope Envelope) error {
	handler, ok := m.handlers[envelope.Type]
	if !ok {
		m.logger.Warn("dropping message with unknown type",
			"type", envelope.Type, "seq", envelope.Seq)
		return nil
	}
	return handler(envelope)
}

// Typed adapts a payload-typed handler into a HandlerFunc, decoding
// the envelope payload into T first. A payload that fails to decode
// is a protocol error for the caller to log and drop.
func Typed[T any](handler func(envelope Envelope, payload T) error) HandlerFunc {
	return func(envelope Envelope) error {
		var payload T
		if err := envelope.Decode(&payload); err != nil {
			return err
		}
		return handler(envelope, payload)
	}
}
