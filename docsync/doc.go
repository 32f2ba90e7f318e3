// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package docsync keeps two live copies of a document convergent.
//
// The host side ([Host]) is authoritative: it holds the canonical
// content and version of every shared document, rebases incoming
// client batches against the operations committed since the batch's
// base version, and acknowledges each commit with the new version and
// a BLAKE3 checksum of the canonical content.
//
// The client side ([Client]) mirrors the host through a three-state
// machine per document: synchronized, one batch awaiting
// acknowledgement, or awaiting with further local edits buffered
// behind it. At most one batch is ever in flight; remote operations
// are transformed over the in-flight batch and the buffer so both
// sides converge without the host echoing transformed operations
// back. Checksum disagreement at a quiet point — acknowledged, no
// buffer — means the replicas drifted, and the client falls back to a
// full resync instead of trying to repair.
//
// Local client edits are coalesced for a short window before being
// sent, so a burst of keystrokes becomes one batch.
package docsync
