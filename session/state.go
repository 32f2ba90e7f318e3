// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"
)

// Defaults for session supervision. All overridable per config.
const (
	// DefaultHandshakeTimeout bounds the wait for the peer's first
	// handshake message after the connection opens.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultHeartbeatInterval is the host's ping cadence.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultHeartbeatMissedLimit is how many silent intervals the
	// host tolerates before declaring the client gone.
	DefaultHeartbeatMissedLimit = 3

	// DefaultReconnectGrace is how long the host withholds the
	// partner-left announcement after an unexplained drop.
	DefaultReconnectGrace = 3 * time.Second

	// DefaultReconnectDelay is the client's fixed wait between
	// reconnect attempts.
	DefaultReconnectDelay = 2 * time.Second

	// DefaultReconnectMaxAttempts caps the client's reconnect loop.
	DefaultReconnectMaxAttempts = 5

	// DefaultWatchdogTimeout is how long the client tolerates a
	// completely silent connection before forcing a reconnect. The
	// host pings every interval, so a healthy connection is never
	// quiet this long.
	DefaultWatchdogTimeout = 20 * time.Second
)

// State is a session endpoint's lifecycle position.
type State int

const (
	// StateIdle: no session.
	StateIdle State = iota

	// StateListening: host waiting for a client.
	StateListening

	// StateConnecting: client dialing or reconnecting.
	StateConnecting

	// StateHandshaking: connection up, handshake in progress.
	StateHandshaking

	// StateActive: handshake complete, documents syncing.
	StateActive

	// StateRejected: the handshake was refused. Terminal.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind classifies session lifecycle events.
type EventKind int

const (
	// EventPartnerJoined: the peer is connected and synced.
	EventPartnerJoined EventKind = iota

	// EventPartnerLeft: the peer is gone — clean bye, or an
	// unexplained drop that outlived the grace window.
	EventPartnerLeft

	// EventReconnecting: the client is retrying a dropped
	// connection; Attempt carries the 1-based attempt number.
	EventReconnecting

	// EventRejected: the handshake was refused; Code and Message
	// carry the reason. Terminal.
	EventRejected

	// EventAccessChanged: the client's write access changed; Writable
	// carries the new state.
	EventAccessChanged

	// EventSessionEnded: the session is over and will not resume.
	EventSessionEnded
)

func (k EventKind) String() string {
	switch k {
	case EventPartnerJoined:
		return "partner-joined"
	case EventPartnerLeft:
		return "partner-left"
	case EventReconnecting:
		return "reconnecting"
	case EventRejected:
		return "rejected"
	case EventAccessChanged:
		return "access-changed"
	case EventSessionEnded:
		return "session-ended"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one session lifecycle change, delivered to the UI layer.
type Event struct {
	Kind     EventKind
	Peer     string
	Attempt  int
	Code     string
	Message  string
	Writable bool
}

// RejectionError is a terminal handshake refusal. The client must not
// retry: the host's answer will not change.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("session rejected (%s): %s", e.Code, e.Message)
}
