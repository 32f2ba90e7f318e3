// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tether-collab/tether/ot"
	"github.com/tether-collab/tether/wire"
	"github.com/tether-collab/tether/workspace"
)

// DefaultHistoryLimit is how many committed operations a host retains
// per document for rebasing. A client batch based further back than
// the retained history cannot be rebased and forces a full resync.
const DefaultHistoryLimit = 100

// Sender sends one typed message to the session peer. Implemented by
// *transport.Conn.
type Sender interface {
	Send(messageType string, payload any) error
}

// ApplyFunc is notified after a remote change lands in a local
// replica, with the new content and version. The editor integration
// writes the content into its buffer and then calls complete; until it
// does, local change reports for the path are ignored, so an editor
// whose change listener fires on programmatic updates does not re-emit
// the applied change as a fresh edit.
type ApplyFunc func(path, content string, version int64, complete func())

// ErrUnknownDocument is returned for operations on a path that was
// never opened.
var ErrUnknownDocument = errors.New("document not open")

// ErrNoSession is returned when an operation needs a connected peer
// and there is none.
var ErrNoSession = errors.New("no connected peer")

type historyEntry struct {
	// base is the version the operation applied to; committing it
	// produced base+1.
	base int64
	op   ot.Operation
}

type hostDoc struct {
	path    string
	content string
	version int64
	history []historyEntry

	// suppressLocal counts remote applies handed to OnApply whose
	// completion callback has not run yet. Local edits are ignored
	// while it is non-zero.
	suppressLocal int
}

// Host is the authoritative side of document synchronization. All
// versions are assigned here; client batches are rebased against the
// retained history before they commit.
type Host struct {
	ws     workspace.Workspace
	logger *slog.Logger

	// OnApply, when set, is called after every commit that did not
	// originate from the local caller. Set before the session starts.
	OnApply ApplyFunc

	// HistoryLimit caps the per-document operation history. Set
	// before the session starts.
	HistoryLimit int

	// CompressionThreshold is the content size above which full-sync
	// snapshots are compressed. Set before the session starts.
	CompressionThreshold int

	mu       sync.Mutex
	sender   Sender
	writable bool
	docs     map[string]*hostDoc
}

// NewHost creates a host engine over ws.
func NewHost(ws workspace.Workspace, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		ws:                   ws,
		logger:               logger,
		HistoryLimit:         DefaultHistoryLimit,
		CompressionThreshold: DefaultCompressionThreshold,
		docs:                 make(map[string]*hostDoc),
	}
}

// Attach installs the connected peer and whether its edits are
// accepted. Document state survives across sessions; only the sender
// changes.
func (h *Host) Attach(sender Sender, writable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender = sender
	h.writable = writable
}

// Detach removes the peer after a disconnect.
func (h *Host) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender = nil
}

// SetWritable grants or revokes the peer's write access. Edits from a
// read-only peer are ignored regardless of what the peer claims.
func (h *Host) SetWritable(writable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writable = writable
}

// Writable reports whether peer edits are currently accepted.
func (h *Host) Writable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writable
}

// send delivers payload to the attached peer, if any. Never called
// with h.mu held: a peer stuck mid-write must not wedge the engine. A
// missing peer is not an error — the client simply receives a full
// sync when it next attaches.
func (h *Host) send(messageType string, payload any) error {
	h.mu.Lock()
	sender := h.sender
	h.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Send(messageType, payload)
}

// openLocked returns the registered document, loading it from the
// workspace on first open.
func (h *Host) openLocked(path string) (*hostDoc, error) {
	if doc, ok := h.docs[path]; ok {
		return doc, nil
	}
	loaded, err := h.ws.Open(path)
	if err != nil {
		return nil, err
	}
	doc := &hostDoc{path: path, content: loaded.Content, version: loaded.Version}
	h.docs[path] = doc
	return doc, nil
}

func (h *Host) snapshotLocked(doc *hostDoc) wire.FullSyncPayload {
	return encodeSnapshot(doc.path, doc.content, doc.version, h.CompressionThreshold)
}

// Open registers path and returns the full-sync snapshot that brings
// a peer up to date.
func (h *Host) Open(path string) (wire.FullSyncPayload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, err := h.openLocked(path)
	if err != nil {
		return wire.FullSyncPayload{}, err
	}
	return h.snapshotLocked(doc), nil
}

// Content returns the canonical content and version of an open
// document.
func (h *Host) Content(path string) (string, int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.docs[path]
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	return doc.content, doc.version, nil
}

// HandleOpen answers a peer's open request with a full sync.
func (h *Host) HandleOpen(payload wire.OpenPayload) error {
	h.mu.Lock()
	doc, err := h.openLocked(payload.Path)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	snapshot := h.snapshotLocked(doc)
	h.mu.Unlock()
	return h.send(wire.TypeFullSync, snapshot)
}

// HandleClose notes that the peer stopped watching a path. The
// document registry is kept: versions must not restart if the path is
// reopened within the session.
func (h *Host) HandleClose(payload wire.ClosePayload) error {
	return nil
}

// HandleEdit rebases and commits one client batch, then acknowledges
// it with the committed version and content checksum.
//
// A batch from a read-only peer is ignored and answered with a full
// sync of the current state, which also resets the peer's optimistic
// local copy. The same reply covers a batch whose base version fell
// out of the retained history or that fails to apply after rebasing:
// neither can be reconciled incrementally.
func (h *Host) HandleEdit(payload wire.EditPayload) error {
	h.mu.Lock()
	doc, ok := h.docs[payload.Path]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownDocument, payload.Path)
	}

	if !h.writable {
		h.logger.Warn("ignoring edit from read-only peer", "path", payload.Path)
		snapshot := h.snapshotLocked(doc)
		h.mu.Unlock()
		return h.send(wire.TypeFullSync, snapshot)
	}

	if err := h.rebaseLocked(doc, payload); err != nil {
		h.logger.Warn("cannot rebase client batch, resyncing",
			"path", payload.Path, "baseVersion", payload.BaseVersion,
			"version", doc.version, "error", err)
		snapshot := h.snapshotLocked(doc)
		h.mu.Unlock()
		return h.send(wire.TypeFullSync, snapshot)
	}

	ack := wire.EditAckPayload{
		Path:     doc.path,
		Version:  doc.version,
		Checksum: Checksum(doc.content),
	}
	onApply := h.OnApply
	content, version := doc.content, doc.version
	if onApply != nil {
		doc.suppressLocal++
	}
	h.mu.Unlock()

	sendErr := h.send(wire.TypeEditAck, ack)
	if onApply != nil {
		onApply(payload.Path, content, version, h.completeFunc(payload.Path))
	}
	return sendErr
}

// completeFunc builds the completion callback handed to OnApply. It
// re-enables local change reports for path; calling it more than once
// is harmless.
func (h *Host) completeFunc(path string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if doc, ok := h.docs[path]; ok && doc.suppressLocal > 0 {
				doc.suppressLocal--
			}
			h.mu.Unlock()
		})
	}
}

// rebaseLocked transforms the batch over every operation committed
// since its base version, applies it, and records it in the history.
func (h *Host) rebaseLocked(doc *hostDoc, payload wire.EditPayload) error {
	if payload.BaseVersion > doc.version {
		return fmt.Errorf("base version %d ahead of document version %d",
			payload.BaseVersion, doc.version)
	}
	oldest := doc.version - int64(len(doc.history))
	if payload.BaseVersion < oldest {
		return fmt.Errorf("base version %d older than retained history (oldest %d)",
			payload.BaseVersion, oldest)
	}

	incoming := payload.Components
	for _, entry := range doc.history {
		if entry.base < payload.BaseVersion {
			continue
		}
		transformed, _, err := ot.Transform(incoming, entry.op)
		if err != nil {
			return fmt.Errorf("transforming against version %d: %w", entry.base, err)
		}
		incoming = transformed
	}

	next, err := ot.Apply(doc.content, incoming)
	if err != nil {
		return fmt.Errorf("applying rebased batch: %w", err)
	}

	doc.history = append(doc.history, historyEntry{base: doc.version, op: incoming})
	if len(doc.history) > h.HistoryLimit {
		doc.history = doc.history[len(doc.history)-h.HistoryLimit:]
	}
	doc.content = next
	doc.version++
	return nil
}

// LocalEdit commits an operation made by the host's own user and
// forwards it to the peer. The returned version is the document
// version after the commit.
//
// While a remote apply for the path is waiting on its completion
// callback, the edit is taken as the editor echoing that apply back
// and is dropped: the content is already committed.
func (h *Host) LocalEdit(path string, op ot.Operation) (int64, error) {
	h.mu.Lock()
	doc, ok := h.docs[path]
	if !ok {
		h.mu.Unlock()
		return 0, fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	if doc.suppressLocal > 0 {
		version := doc.version
		h.mu.Unlock()
		return version, nil
	}

	next, err := ot.Apply(doc.content, op)
	if err != nil {
		h.mu.Unlock()
		return 0, fmt.Errorf("applying local edit to %q: %w", path, err)
	}

	base := doc.version
	doc.history = append(doc.history, historyEntry{base: base, op: op})
	if len(doc.history) > h.HistoryLimit {
		doc.history = doc.history[len(doc.history)-h.HistoryLimit:]
	}
	doc.content = next
	doc.version++
	version := doc.version
	h.mu.Unlock()

	if err := h.send(wire.TypeEdit, wire.EditPayload{
		Path:        path,
		BaseVersion: base,
		Components:  op,
	}); err != nil {
		return version, err
	}
	return version, nil
}

// LocalReplace is LocalEdit for a plain text replacement: length
// UTF-16 units at start are replaced by replacement.
func (h *Host) LocalReplace(path string, start, length int, replacement string) (int64, error) {
	h.mu.Lock()
	doc, ok := h.docs[path]
	if !ok {
		h.mu.Unlock()
		return 0, fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	baseLen := ot.UTF16Len(doc.content)
	h.mu.Unlock()

	op, err := ot.FromReplace(baseLen, start, length, replacement)
	if err != nil {
		return 0, err
	}
	return h.LocalEdit(path, op)
}

// Save writes the canonical content of path durably to the
// workspace.
func (h *Host) Save(path string) error {
	h.mu.Lock()
	doc, ok := h.docs[path]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	content := doc.content
	h.mu.Unlock()
	return h.ws.Write(path, content)
}

// HandleSave performs a save on the peer's behalf and reports the
// outcome.
func (h *Host) HandleSave(payload wire.SavePayload) error {
	ack := wire.SaveAckPayload{Path: payload.Path, OK: true}
	if err := h.Save(payload.Path); err != nil {
		ack.OK = false
		ack.Message = err.Error()
		h.logger.Warn("save failed", "path", payload.Path, "error", err)
	}
	return h.send(wire.TypeSaveAck, ack)
}

// HandleList answers a listing request with the flattened workspace
// listing.
func (h *Host) HandleList(payload wire.ListPayload) error {
	entries, err := h.ws.List("")
	if err != nil {
		return fmt.Errorf("listing workspace: %w", err)
	}
	return h.send(wire.TypeListing, wire.ListingPayload{Entries: entries})
}

// HandleFetch answers an on-demand content request. An unreadable
// path resolves to not-found rather than an error: the peer's
// preview just stays empty.
func (h *Host) HandleFetch(payload wire.FetchPayload) error {
	result := wire.FetchResultPayload{Path: payload.Path, ID: payload.ID}
	content, err := h.ws.FetchContent(context.Background(), payload.Path)
	if err == nil {
		result.Content = content
		result.Found = true
	}
	return h.send(wire.TypeFetchResult, result)
}

// OpenPaths returns a full-sync snapshot for every path, registering
// each. Used at session start to push the share's open paths.
func (h *Host) OpenPaths(paths []string) ([]wire.FullSyncPayload, error) {
	snapshots := make([]wire.FullSyncPayload, 0, len(paths))
	for _, path := range paths {
		snapshot, err := h.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", path, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
