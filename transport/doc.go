// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the point-to-point channel between a
// Tether host and client: one ordered, encrypted, full-duplex TCP
// connection per session.
//
// [Listener] accepts the host side, [Dialer] opens the client side,
// and both produce a [Conn] that frames wire envelopes as
// newline-delimited UTF-8 JSON, stamping each outgoing envelope with
// a per-sender monotonic sequence number. Ordering is inherited from
// the TCP stream; the frame size guard caps a single envelope at
// 16 MiB.
//
// The channel is encrypted with TLS using a locally generated,
// short-lived, self-issued certificate ([SelfSignedCertificate]). The
// client accepts it without chain validation — this is the LAN trust
// model, deliberately not PKI-grade; the passphrase check in the
// session handshake is what gates access.
//
// [Heartbeat] implements liveness: the connection owner pings on a
// fixed interval, and after a fixed number of consecutive missed
// pongs the connection is forcibly closed and reported dead.
// [Reconnector] implements the client's capped fixed-delay retry
// loop. A transport-level read or write error surfaces as an event to
// the caller, but only an explicit close is authoritative for session
// teardown.
package transport
