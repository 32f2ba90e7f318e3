// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tether-collab/tether/wire"
)

// FetchFunc obtains the content of a path that the mirror has not
// synced, typically by asking the host over the wire. found is false
// when the host has no such path.
type FetchFunc func(ctx context.Context, path string) (content string, found bool, err error)

// Mirror is the client-side workspace: an in-memory replica of the
// host's content. It holds only what the session has synced — opened
// documents, the last listing, fetched content — and never touches
// the local filesystem.
type Mirror struct {
	mu      sync.Mutex
	docs    map[string]Document
	listing []wire.ListingEntry
	fetch   FetchFunc
}

var _ Workspace = (*Mirror)(nil)

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{docs: make(map[string]Document)}
}

// SetFetcher installs the on-demand content source used by
// FetchContent for paths the mirror has not synced.
func (m *Mirror) SetFetcher(fetch FetchFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetch = fetch
}

// Replace installs a document wholesale, as delivered by a full sync.
func (m *Mirror) Replace(path, content string, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = Document{Path: path, Content: content, Version: version}
}

// Update stores new content and version for an already-synced
// document, as produced by applying an operation.
func (m *Mirror) Update(path, content string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	m.docs[path] = Document{Path: path, Content: content, Version: version}
	return nil
}

// Forget drops a document from the mirror, after a close.
func (m *Mirror) Forget(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
}

// SetListing replaces the cached workspace listing.
func (m *Mirror) SetListing(entries []wire.ListingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listing = entries
}

// Open returns the synced document at path. A path the session has
// not synced yet is ErrNotFound: the caller should send an open
// request and wait for the full sync.
func (m *Mirror) Open(path string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	document, ok := m.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	return document, nil
}

// Write updates the cached content of a synced document. The version
// is unchanged: only synchronization advances it.
func (m *Mirror) Write(path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	document, ok := m.docs[path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	document.Content = content
	m.docs[path] = document
	return nil
}

// List filters the cached listing to entries under path. The listing
// is whatever the host last sent; an empty mirror lists nothing.
func (m *Mirror) List(path string) ([]wire.ListingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" || path == "." {
		return append([]wire.ListingEntry(nil), m.listing...), nil
	}
	prefix := strings.TrimSuffix(path, "/") + "/"
	var filtered []wire.ListingEntry
	for _, entry := range m.listing {
		if strings.HasPrefix(entry.Path, prefix) {
			filtered = append(filtered, entry)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })
	return filtered, nil
}

// FetchContent returns synced content immediately, or falls back to
// the installed fetcher. A fetch that times out resolves to empty
// content rather than an error, so a stalled host degrades to a blank
// preview instead of a stuck caller.
func (m *Mirror) FetchContent(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	document, ok := m.docs[path]
	fetch := m.fetch
	m.mu.Unlock()

	if ok {
		return document.Content, nil
	}
	if fetch == nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, path)
	}

	content, found, err := fetch(ctx, path)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetching %q: %w", path, err)
	}
	if !found {
		return "", fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	return content, nil
}
