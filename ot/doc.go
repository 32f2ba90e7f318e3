// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package ot implements the operational-transform text model that
// keeps host and client document content convergent.
//
// An [Operation] is an ordered list of [Component] values — retain(n),
// insert(s), delete(n) — interpreted left to right from offset 0.
// Offsets and spans are measured in UTF-16 code units, matching the
// editor surfaces the sync engine integrates with; conversion to and
// from Go strings happens inside [Apply].
//
// The package provides the four primitives the synchronizer builds on:
//
//   - [Apply] applies an operation to a text state, validating span
//     arithmetic against the text's actual length.
//   - [Compose] merges two sequential operations into one that has
//     the same net effect, used by the edit batcher to coalesce rapid
//     consecutive edits.
//   - [Transform] derives the bottom two sides of the OT diamond for
//     two operations based on the same text state. The second
//     argument is the committed (host-priority) side: its insertions
//     are never deleted by the transformed incoming operation, and
//     position ties resolve in its favor, so a conflicting incoming
//     edit degrades to an insertion placed immediately after the
//     committed change.
//   - [FromTexts] derives a minimal operation from two text states by
//     diffing, for change events that only report full text.
//
// The wire encoding of a component (JSON integer = retain, JSON
// string = insert, {"delete": n} = delete) lives on [Component] so
// the wire package carries operations without re-encoding them.
package ot
