// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"

	"github.com/tether-collab/tether/wire"
)

// ErrNotFound is returned when a path has no content in the
// workspace: a missing file on the host side, an unsynced document on
// the mirror side.
var ErrNotFound = errors.New("path not found in workspace")

// ErrOutsideRoot is returned when a path escapes the share root.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// Document is one open document's content and session version.
type Document struct {
	Path    string
	Content string
	// Version is the document's synchronization version: 0 for a
	// freshly opened host document, the last synced version on a
	// mirror.
	Version int64
}

// Workspace is the contract between the sync engine and the text
// workspace it shares. Paths are slash-separated and relative to the
// workspace root.
type Workspace interface {
	// Open returns the current document at path.
	Open(path string) (Document, error)

	// Write replaces the content of path. On the host this is a
	// durable disk write; on a mirror it only updates the cache.
	Write(path, content string) error

	// List returns one flattened listing of every entry under path
	// ("" lists the whole workspace).
	List(path string) ([]wire.ListingEntry, error)

	// FetchContent returns the content of path on demand, bounded by
	// ctx. A mirror that cannot obtain the content before ctx expires
	// resolves to empty content rather than an error.
	FetchContent(ctx context.Context, path string) (string, error)
}
