// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type tags. One constant per logical message; the payload
// struct for each is named after the tag.
const (
	// TypeHello opens the handshake. Client → host, first message on
	// every connection.
	TypeHello = "hello"

	// TypeWelcome accepts the handshake. Host → client.
	TypeWelcome = "welcome"

	// TypeError rejects the handshake or reports a terminal protocol
	// failure. Carries a non-retryable code.
	TypeError = "error"

	// TypeEdit carries one operation batch for a document. Client →
	// host submissions are tagged with the client's last-known
	// version; host → client relays are tagged with the version the
	// committed operation was based on.
	TypeEdit = "edit"

	// TypeEditAck acknowledges a submitted batch. Host → client,
	// carrying the committed version and a content checksum for
	// divergence detection.
	TypeEditAck = "edit_ack"

	// TypeFullSync replaces a document's content and version
	// unconditionally. Host → client, on subscription and divergence
	// recovery.
	TypeFullSync = "full_sync"

	// TypeOpen subscribes to a document; the host answers with a
	// full_sync. TypeClose unsubscribes.
	TypeOpen  = "open"
	TypeClose = "close"

	// TypeAccess grants or revokes the client's write access.
	// Host → client.
	TypeAccess = "access"

	// TypeSave forwards a client save request; TypeSaveAck confirms
	// the host's durable write. The ack clears the client's modified
	// indicator and never alters content.
	TypeSave    = "save"
	TypeSaveAck = "save_ack"

	// TypeList requests the flattened workspace listing; TypeListing
	// answers it. Used once at session start to build the browse tree.
	TypeList    = "list"
	TypeListing = "listing"

	// TypeFetch requests document content on demand; TypeFetchResult
	// answers it. Requests are bounded by a timeout on the requesting
	// side and resolve to empty content rather than blocking.
	TypeFetch       = "fetch"
	TypeFetchResult = "fetch_result"

	// TypePing and TypePong are the liveness probes.
	TypePing = "ping"
	TypePong = "pong"

	// TypeBye announces a clean close before disconnecting.
	TypeBye = "bye"
)

// Envelope is the common wrapper around every wire message.
type Envelope struct {
	// Type is the message type tag (one of the Type constants).
	Type string `json:"type"`

	// Seq is a monotonic sequence number per sender. It exists for
	// logging and debugging; ordering is guaranteed by the stream.
	Seq int64 `json:"seq"`

	// Timestamp is the sender's clock at send time, epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Payload is the type-specific message body.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for the given payload. The sequence
// number is assigned by the transport connection at send time.
func NewEnvelope(messageType string, now time.Time, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", messageType, err)
	}
	return Envelope{
		Type:      messageType,
		Timestamp: now.UnixMilli(),
		Payload:   body,
	}, nil
}

// Decode unmarshals the envelope's payload into target.
func (e Envelope) Decode(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}
