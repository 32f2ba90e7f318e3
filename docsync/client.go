// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/ot"
	"github.com/tether-collab/tether/wire"
	"github.com/tether-collab/tether/workspace"
)

// DefaultCoalesceWindow is how long a local edit waits for followups
// before its batch is sent. Each new edit restarts the window, so a
// typing burst becomes one batch.
const DefaultCoalesceWindow = 40 * time.Millisecond

// DefaultFetchTimeout bounds an on-demand content fetch; on expiry
// the fetch resolves to empty content.
const DefaultFetchTimeout = 10 * time.Second

// ErrReadOnly is returned for local edits while write access is
// withheld.
var ErrReadOnly = errors.New("write access not granted")

// State is a document's position in the acknowledgement cycle.
type State int

const (
	// StateSynchronized: no local edits in flight.
	StateSynchronized State = iota

	// StateAwaitingAck: one batch sent, not yet acknowledged.
	StateAwaitingAck

	// StateAwaitingBuffer: one batch in flight and further local
	// edits composed behind it, to be sent after the ack.
	StateAwaitingBuffer
)

func (s State) String() string {
	switch s {
	case StateSynchronized:
		return "synchronized"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateAwaitingBuffer:
		return "awaiting-with-buffer"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type clientDoc struct {
	path    string
	content string
	version int64

	state   State
	pending ot.Operation // in flight, unacknowledged
	buffer  ot.Operation // composed behind pending

	// batch collects local edits during the coalescing window before
	// they enter the state machine.
	batch      ot.Operation
	batchTimer *clock.Timer

	// awaitingSync is set while the replica is stale — after a
	// disconnect or a requested resync — and cleared by the next full
	// sync. No batch is submitted while it is set: the stale version
	// cannot be a valid base.
	awaitingSync bool

	// suppressLocal counts remote applies handed to OnApply whose
	// completion callback has not run yet. Local changes are ignored
	// while it is non-zero.
	suppressLocal int
}

// Client is the mirroring side of document synchronization. It owns
// the replica content, the per-document acknowledgement state
// machine, and the coalescing of local edits into batches.
type Client struct {
	mirror *workspace.Mirror
	clk    clock.Clock
	logger *slog.Logger

	// OnApply, when set, is called after remote changes land in the
	// replica: a committed remote batch or a full sync. Set before
	// the session starts.
	OnApply ApplyFunc

	// OnSaveResult, when set, is called when the host reports the
	// outcome of a requested save.
	OnSaveResult func(path string, ok bool, message string)

	// CoalesceWindow is the local-edit batching window. Set before
	// the session starts.
	CoalesceWindow time.Duration

	// FetchTimeout bounds Fetch when the caller's context carries no
	// deadline. Set before the session starts.
	FetchTimeout time.Duration

	mu       sync.Mutex
	sender   Sender
	writable bool
	docs     map[string]*clientDoc

	nextFetchID int64
	fetches     map[int64]chan wire.FetchResultPayload
}

// NewClient creates a client engine that materializes synced content
// into mirror.
func NewClient(mirror *workspace.Mirror, clk clock.Clock, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		mirror:         mirror,
		clk:            clk,
		logger:         logger,
		CoalesceWindow: DefaultCoalesceWindow,
		FetchTimeout:   DefaultFetchTimeout,
		docs:           make(map[string]*clientDoc),
		fetches:        make(map[int64]chan wire.FetchResultPayload),
	}
	mirror.SetFetcher(client.Fetch)
	return client
}

// Attach installs the connected peer and the session's initial write
// access.
func (c *Client) Attach(sender Sender, writable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = sender
	c.writable = writable
}

// Detach removes the peer after a disconnect and discards all
// unacknowledged local state: whatever was in flight is unknowable
// until the next full sync. Every replica is marked stale so nothing
// is submitted from the old version after a reconnect.
func (c *Client) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = nil
	for _, doc := range c.docs {
		c.resetDocLocked(doc)
		doc.awaitingSync = true
	}
	for id, waiter := range c.fetches {
		close(waiter)
		delete(c.fetches, id)
	}
}

// OpenDocumentPaths returns the paths of every document the client is
// watching, for re-subscription after a reconnect.
func (c *Client) OpenDocumentPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.docs))
	for path := range c.docs {
		paths = append(paths, path)
	}
	return paths
}

// SetWritable applies an access grant or revocation.
func (c *Client) SetWritable(writable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable = writable
}

// Writable reports whether local edits are currently allowed.
func (c *Client) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable
}

// Document returns the replica content and version of a synced path.
func (c *Client) Document(path string) (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[path]
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	return doc.content, doc.version, nil
}

// DocumentState returns a path's acknowledgement state.
func (c *Client) DocumentState(path string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[path]
	if !ok {
		return StateSynchronized, fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	return doc.state, nil
}

func (c *Client) send(messageType string, payload any) error {
	if c.sender == nil {
		return ErrNoSession
	}
	return c.sender.Send(messageType, payload)
}

// resetDocLocked drops every unacknowledged local edit and returns
// the document to the synchronized state. Content is left as-is; it
// is stale until the next full sync replaces it.
func (c *Client) resetDocLocked(doc *clientDoc) {
	doc.state = StateSynchronized
	doc.pending = nil
	doc.buffer = nil
	doc.batch = nil
	if doc.batchTimer != nil {
		doc.batchTimer.Stop()
	}
}

// resyncLocked abandons incremental synchronization for a path and
// asks the host for a fresh snapshot.
func (c *Client) resyncLocked(doc *clientDoc, reason string) error {
	c.logger.Warn("document diverged, requesting full resync",
		"path", doc.path, "version", doc.version, "reason", reason)
	c.resetDocLocked(doc)
	doc.awaitingSync = true
	return c.send(wire.TypeOpen, wire.OpenPayload{Path: doc.path})
}

// OpenPath subscribes to a document. The host answers with a full
// sync, which creates (or refreshes) the local replica. An existing
// replica is stale until that snapshot lands.
func (c *Client) OpenPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[path]; ok {
		doc.awaitingSync = true
	}
	return c.send(wire.TypeOpen, wire.OpenPayload{Path: path})
}

// ClosePath unsubscribes from a document and drops its replica.
func (c *Client) ClosePath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[path]
	if ok {
		c.resetDocLocked(doc)
		delete(c.docs, path)
	}
	c.mirror.Forget(path)
	return c.send(wire.TypeClose, wire.ClosePayload{Path: path})
}

// HandleFullSync replaces a replica wholesale. Any local state for
// the path — in-flight batch, buffer, coalescing window — is
// discarded; the snapshot is the new truth.
func (c *Client) HandleFullSync(payload wire.FullSyncPayload) error {
	content, err := DecodeSnapshot(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	doc, ok := c.docs[payload.Path]
	if !ok {
		doc = &clientDoc{path: payload.Path}
		c.docs[payload.Path] = doc
	}
	c.resetDocLocked(doc)
	doc.awaitingSync = false
	doc.content = content
	doc.version = payload.Version
	c.mirror.Replace(payload.Path, content, payload.Version)
	onApply := c.OnApply
	if onApply != nil {
		doc.suppressLocal++
	}
	c.mu.Unlock()

	if onApply != nil {
		onApply(payload.Path, content, payload.Version, c.completeFunc(payload.Path))
	}
	return nil
}

// completeFunc builds the completion callback handed to OnApply. It
// re-enables local change reports for path; calling it more than once
// is harmless.
func (c *Client) completeFunc(path string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if doc, ok := c.docs[path]; ok && doc.suppressLocal > 0 {
				doc.suppressLocal--
			}
			c.mu.Unlock()
		})
	}
}

// LocalChange applies a local text replacement — length UTF-16 units
// at start replaced by replacement — and schedules it for sending at
// the end of the coalescing window.
//
// While a remote apply for the path is waiting on its completion
// callback, the change is taken as the editor echoing that apply back
// and is dropped: the content is already current.
func (c *Client) LocalChange(path string, start, length int, replacement string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDocument, path)
	}
	if doc.suppressLocal > 0 {
		return nil
	}
	if !c.writable {
		return ErrReadOnly
	}

	op, err := ot.FromReplace(ot.UTF16Len(doc.content), start, length, replacement)
	if err != nil {
		return err
	}
	next, err := ot.Apply(doc.content, op)
	if err != nil {
		return fmt.Errorf("applying local change to %q: %w", path, err)
	}
	doc.content = next
	if err := c.mirror.Update(path, next, doc.version); err != nil {
		return err
	}

	if doc.batch == nil {
		doc.batch = op
	} else {
		composed, err := ot.Compose(doc.batch, op)
		if err != nil {
			return fmt.Errorf("coalescing local edits for %q: %w", path, err)
		}
		doc.batch = composed
	}

	if doc.awaitingSync {
		// A fresh snapshot is on the way and will supersede the
		// batch; nothing is scheduled from a stale version.
		return nil
	}
	if doc.batchTimer == nil {
		doc.batchTimer = c.clk.AfterFunc(c.CoalesceWindow, func() { c.flushBatch(path) })
	} else {
		doc.batchTimer.Reset(c.CoalesceWindow)
	}
	return nil
}

// flushBatch moves the coalesced batch into the acknowledgement
// machine: sent immediately when synchronized, composed behind the
// in-flight batch otherwise.
func (c *Client) flushBatch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[path]
	if !ok || doc.awaitingSync || doc.batch == nil || doc.batch.IsNoop() {
		return
	}
	batch := doc.batch
	doc.batch = nil

	switch doc.state {
	case StateSynchronized:
		doc.pending = batch
		doc.state = StateAwaitingAck
		if err := c.send(wire.TypeEdit, wire.EditPayload{
			Path:        path,
			BaseVersion: doc.version,
			Components:  batch,
		}); err != nil {
			c.logger.Warn("sending edit batch failed", "path", path, "error", err)
		}
	case StateAwaitingAck:
		doc.buffer = batch
		doc.state = StateAwaitingBuffer
	case StateAwaitingBuffer:
		composed, err := ot.Compose(doc.buffer, batch)
		if err != nil {
			c.resyncLocked(doc, fmt.Sprintf("composing buffer: %v", err))
			return
		}
		doc.buffer = composed
	}
}

// FlushPending forces the coalescing window closed for a path so the
// batch enters the machine now. Used before saves and teardown.
func (c *Client) FlushPending(path string) {
	c.mu.Lock()
	doc, ok := c.docs[path]
	if ok && doc.batchTimer != nil {
		doc.batchTimer.Stop()
	}
	c.mu.Unlock()
	if ok {
		c.flushBatch(path)
	}
}

// HandleEditAck completes the in-flight batch: the replica adopts the
// committed version, and the buffer, if any, becomes the next
// in-flight batch.
//
// At a quiet point — acknowledged, nothing buffered, nothing in the
// coalescing window — the local content must match the host's
// checksum. A mismatch means the replicas diverged and triggers a
// full resync.
func (c *Client) HandleEditAck(payload wire.EditAckPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[payload.Path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDocument, payload.Path)
	}
	if doc.awaitingSync {
		// Leftover from before the replica went stale; the pending
		// snapshot supersedes it.
		return nil
	}
	if doc.state == StateSynchronized {
		return c.resyncLocked(doc, "unexpected edit_ack")
	}

	doc.version = payload.Version
	doc.pending = nil
	c.mirror.Replace(payload.Path, doc.content, doc.version)

	if doc.state == StateAwaitingBuffer {
		doc.pending = doc.buffer
		doc.buffer = nil
		doc.state = StateAwaitingAck
		return c.send(wire.TypeEdit, wire.EditPayload{
			Path:        payload.Path,
			BaseVersion: doc.version,
			Components:  doc.pending,
		})
	}

	doc.state = StateSynchronized
	if doc.batch == nil && Checksum(doc.content) != payload.Checksum {
		return c.resyncLocked(doc, "checksum mismatch after ack")
	}
	return nil
}

// HandleEdit applies a batch committed by the host. The batch is
// transformed over every unacknowledged local stage — in-flight,
// buffered, coalescing — so that both replicas converge without the
// host ever replaying the client's own edits back.
func (c *Client) HandleEdit(payload wire.EditPayload) error {
	c.mu.Lock()

	doc, ok := c.docs[payload.Path]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownDocument, payload.Path)
	}
	if doc.awaitingSync {
		c.mu.Unlock()
		return nil
	}
	if payload.BaseVersion != doc.version {
		err := c.resyncLocked(doc, fmt.Sprintf("edit base %d, replica at %d",
			payload.BaseVersion, doc.version))
		c.mu.Unlock()
		return err
	}

	remote := payload.Components
	for _, stage := range []*ot.Operation{&doc.pending, &doc.buffer, &doc.batch} {
		if *stage == nil {
			continue
		}
		localT, remoteT, err := ot.Transform(*stage, remote)
		if err != nil {
			resyncErr := c.resyncLocked(doc, fmt.Sprintf("transform failed: %v", err))
			c.mu.Unlock()
			return resyncErr
		}
		*stage = localT
		remote = remoteT
	}

	next, err := ot.Apply(doc.content, remote)
	if err != nil {
		resyncErr := c.resyncLocked(doc, fmt.Sprintf("apply failed: %v", err))
		c.mu.Unlock()
		return resyncErr
	}
	doc.content = next
	doc.version = payload.BaseVersion + 1
	c.mirror.Replace(payload.Path, doc.content, doc.version)
	onApply := c.OnApply
	content, version := doc.content, doc.version
	if onApply != nil {
		doc.suppressLocal++
	}
	c.mu.Unlock()

	if onApply != nil {
		onApply(payload.Path, content, version, c.completeFunc(payload.Path))
	}
	return nil
}

// RequestSave asks the host to write a document durably. The
// coalescing window is flushed first so the request follows every
// local edit down the ordered channel.
func (c *Client) RequestSave(path string) error {
	c.FlushPending(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(wire.TypeSave, wire.SavePayload{Path: path})
}

// HandleSaveAck reports a save outcome to the UI layer.
func (c *Client) HandleSaveAck(payload wire.SaveAckPayload) error {
	c.mu.Lock()
	onSave := c.OnSaveResult
	c.mu.Unlock()
	if onSave != nil {
		onSave(payload.Path, payload.OK, payload.Message)
	}
	return nil
}

// RequestList asks the host for the workspace listing.
func (c *Client) RequestList() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(wire.TypeList, wire.ListPayload{})
}

// HandleListing caches the host's listing in the mirror.
func (c *Client) HandleListing(payload wire.ListingPayload) error {
	c.mirror.SetListing(payload.Entries)
	return nil
}

// Fetch requests content on demand and waits for the correlated
// result, bounded by FetchTimeout unless ctx carries a tighter
// deadline. It satisfies workspace.FetchFunc, so the mirror uses it
// for unsynced paths.
func (c *Client) Fetch(ctx context.Context, path string) (string, bool, error) {
	if _, bounded := ctx.Deadline(); !bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.FetchTimeout)
		defer cancel()
	}

	c.mu.Lock()
	c.nextFetchID++
	id := c.nextFetchID
	waiter := make(chan wire.FetchResultPayload, 1)
	c.fetches[id] = waiter
	err := c.send(wire.TypeFetch, wire.FetchPayload{Path: path, ID: id})
	c.mu.Unlock()
	if err != nil {
		c.dropFetch(id)
		return "", false, err
	}

	select {
	case <-ctx.Done():
		c.dropFetch(id)
		return "", false, ctx.Err()
	case result, ok := <-waiter:
		if !ok {
			return "", false, ErrNoSession
		}
		return result.Content, result.Found, nil
	}
}

func (c *Client) dropFetch(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fetches, id)
}

// HandleFetchResult resolves the waiting fetch, if it has not timed
// out already.
func (c *Client) HandleFetchResult(payload wire.FetchResultPayload) error {
	c.mu.Lock()
	waiter, ok := c.fetches[payload.ID]
	if ok {
		delete(c.fetches, payload.ID)
	}
	c.mu.Unlock()
	if ok {
		waiter <- payload
	}
	return nil
}
