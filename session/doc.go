// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package session negotiates and supervises the connection between
// the two peers of a workspace session.
//
// The host ([Host]) listens, validates each incoming hello in a fixed
// order — protocol version, then passphrase, then occupancy — and on
// acceptance sends a welcome followed by a full sync of every open
// path. A session holds exactly one client; further hellos are
// rejected with SESSION_FULL. When a client drops without a bye, the
// host waits out a short grace window before announcing the
// departure, so a quick reconnect looks like an uninterrupted
// session.
//
// The client ([Client]) dials, performs the handshake, and supervises
// the connection: answering the host's pings, watching for silence,
// and retrying dropped connections with a fixed delay up to a capped
// attempt count. Handshake rejections are terminal and never retried.
//
// Both sides surface session lifecycle changes on an event channel
// for the UI layer; message-level work is delegated to the docsync
// engines.
package session
