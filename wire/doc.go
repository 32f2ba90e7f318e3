// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines Tether's message protocol: the envelope that
// wraps every logical message, the payload struct for each message
// type, and the typed dispatch mux that routes decoded envelopes to
// handlers.
//
// Every message on the channel is one [Envelope]: UTF-8 JSON with a
// type tag, a per-sender monotonic sequence number, an epoch-
// millisecond timestamp, and a type-specific payload. Envelopes are
// newline-delimited on the stream; framing lives in the transport
// package.
//
// Each message type has an explicit payload struct — absent wire
// fields are modeled as explicit zero values or omitempty options,
// never as implicitly-undefined lookups. The [Mux] routes by message
// type tag with one registered handler per type; there is no
// string-keyed event-emitter chain. Unknown message types and
// malformed payloads are logged and dropped without closing the
// connection: a protocol hiccup must not tear down a live editing
// session.
//
// Operation components ride inside [EditPayload] using the encoding
// defined on ot.Component: a JSON integer is retain(n), a JSON string
// is insert(s), and {"delete": n} is delete(n).
package wire
