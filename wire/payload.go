// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"github.com/tether-collab/tether/ot"
)

// Handshake rejection codes carried by [ErrorPayload]. All three are
// terminal: the client must not retry automatically.
const (
	// CodeAuthFailed means the passphrase did not match.
	CodeAuthFailed = "AUTH_FAILED"

	// CodeVersionMismatch means the client's protocol version is not
	// exactly the host's.
	CodeVersionMismatch = "VERSION_MISMATCH"

	// CodeSessionFull means the host already has a connected client.
	CodeSessionFull = "SESSION_FULL"
)

// ProtocolVersion is the current wire protocol version. The handshake
// requires an exact match; there is no negotiation window.
const ProtocolVersion = 1

// HelloPayload opens the handshake.
type HelloPayload struct {
	Username        string `json:"username"`
	Workspace       string `json:"workspace"`
	ProtocolVersion int    `json:"protocolVersion"`
	// Passphrase is present only when the client was started with
	// one. The host compares it against its configured passphrase.
	Passphrase string `json:"passphrase,omitempty"`
}

// WelcomePayload accepts the handshake.
type WelcomePayload struct {
	HostUsername    string   `json:"hostUsername"`
	ProtocolVersion int      `json:"protocolVersion"`
	OpenPaths       []string `json:"openPaths"`
	ReadonlyDefault bool     `json:"readonlyDefault"`
}

// ErrorPayload reports a terminal, non-retryable failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EditPayload carries one operation batch for a document.
type EditPayload struct {
	Path string `json:"path"`
	// BaseVersion is the document version the operation applies to.
	// The resulting version after commit is BaseVersion+1.
	BaseVersion int64        `json:"baseVersion"`
	Components  ot.Operation `json:"components"`
}

// EditAckPayload acknowledges the sender's in-flight batch.
type EditAckPayload struct {
	Path string `json:"path"`
	// Version is the document version after the batch was committed.
	Version int64 `json:"version"`
	// Checksum is the BLAKE3 hex digest of the host's content after
	// commit. A mirror that disagrees requests a full resync.
	Checksum string `json:"checksum"`
}

// FullSyncPayload replaces a document wholesale.
type FullSyncPayload struct {
	Path    string `json:"path"`
	Version int64  `json:"version"`
	// Content is the document text, or a base64-encoded zstd frame
	// when Compressed is set.
	Content    string `json:"content"`
	Checksum   string `json:"checksum"`
	Compressed bool   `json:"compressed,omitempty"`
}

// OpenPayload subscribes to a document. The host responds with a
// full_sync for the path.
type OpenPayload struct {
	Path string `json:"path"`
}

// ClosePayload unsubscribes from a document.
type ClosePayload struct {
	Path string `json:"path"`
}

// AccessPayload grants or revokes the client's write access.
type AccessPayload struct {
	Writable bool `json:"writable"`
}

// SavePayload forwards a client save request to the host.
type SavePayload struct {
	Path string `json:"path"`
}

// SaveAckPayload confirms (or denies) a durable write.
type SaveAckPayload struct {
	Path string `json:"path"`
	OK   bool   `json:"ok"`
	// Message describes the failure when OK is false.
	Message string `json:"message,omitempty"`
}

// ListPayload requests the flattened workspace listing.
type ListPayload struct{}

// EntryKind distinguishes listing entries.
type EntryKind string

const (
	EntryFile      EntryKind = "file"
	EntryDirectory EntryKind = "directory"
)

// ListingEntry is one workspace entry in a listing.
type ListingEntry struct {
	Path string    `json:"path"`
	Kind EntryKind `json:"kind"`
	Size int64     `json:"size"`
	// ModifiedTime is epoch milliseconds.
	ModifiedTime int64 `json:"modifiedTime"`
}

// ListingPayload answers a list request with one flattened listing.
type ListingPayload struct {
	Entries []ListingEntry `json:"entries"`
}

// FetchPayload requests document content on demand. ID correlates the
// response; the requester times out and resolves to empty content if
// no fetch_result with a matching ID arrives.
type FetchPayload struct {
	Path string `json:"path"`
	ID   int64  `json:"id"`
}

// FetchResultPayload answers a fetch.
type FetchResultPayload struct {
	Path    string `json:"path"`
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Found   bool   `json:"found"`
}

// PingPayload and PongPayload are empty liveness probes.
type PingPayload struct{}
type PongPayload struct{}

// ByePayload announces a clean close.
type ByePayload struct{}
