// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tether-collab/tether/wire"
)

// Dir is the host-side workspace: a directory on disk shared with the
// session. All paths are confined to the root; writes are atomic
// (temporary file in the same directory, then rename).
type Dir struct {
	root     string
	settings ShareSettings
}

var _ Workspace = (*Dir)(nil)

// OpenDir opens root as a shared workspace, loading share settings
// from its SettingsFileName if present.
func OpenDir(root string) (*Dir, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return nil, fmt.Errorf("opening workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", absolute)
	}
	settings, err := LoadSettings(absolute)
	if err != nil {
		return nil, err
	}
	return &Dir{root: absolute, settings: settings}, nil
}

// Root returns the absolute share root.
func (d *Dir) Root() string { return d.root }

// Settings returns the share settings loaded at open time.
func (d *Dir) Settings() ShareSettings { return d.settings }

// resolve maps a wire path to an absolute filesystem path, rejecting
// anything that would escape the root.
func (d *Dir) resolve(wirePath string) (string, error) {
	cleaned := path.Clean("/" + wirePath)
	if cleaned == "/" {
		return d.root, nil
	}
	// Clean("/"+p) confines ".." to the root, but an explicit escape
	// attempt is a protocol violation worth naming.
	for _, segment := range strings.Split(wirePath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, wirePath)
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned[1:])), nil
}

// Open reads the file at path. The returned version is always 0: disk
// content is the session baseline, and versions advance only through
// synchronization.
func (d *Dir) Open(wirePath string) (Document, error) {
	resolved, err := d.resolve(wirePath)
	if err != nil {
		return Document{}, err
	}
	raw, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, wirePath)
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading %q: %w", wirePath, err)
	}
	return Document{Path: wirePath, Content: string(raw)}, nil
}

// Write replaces path with content durably: the content lands in a
// temporary file in the target directory and is renamed into place,
// so a crash never leaves a half-written file.
func (d *Dir) Write(wirePath, content string) error {
	resolved, err := d.resolve(wirePath)
	if err != nil {
		return err
	}
	parent := filepath.Dir(resolved)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %q: %w", wirePath, err)
	}
	temporary, err := os.CreateTemp(parent, ".tether-write-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %q: %w", wirePath, err)
	}
	temporaryName := temporary.Name()
	if _, err := temporary.WriteString(content); err != nil {
		temporary.Close()
		os.Remove(temporaryName)
		return fmt.Errorf("writing %q: %w", wirePath, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryName)
		return fmt.Errorf("writing %q: %w", wirePath, err)
	}
	if err := os.Rename(temporaryName, resolved); err != nil {
		os.Remove(temporaryName)
		return fmt.Errorf("replacing %q: %w", wirePath, err)
	}
	return nil
}

// List walks the tree under path and returns one flattened listing,
// omitting entries matched by the ignore patterns.
func (d *Dir) List(wirePath string) ([]wire.ListingEntry, error) {
	resolved, err := d.resolve(wirePath)
	if err != nil {
		return nil, err
	}

	var entries []wire.ListingEntry
	walkErr := filepath.WalkDir(resolved, func(walked string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(d.root, walked)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if relative == "." {
			return nil
		}
		if d.ignored(relative) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		kind := wire.EntryFile
		size := info.Size()
		if entry.IsDir() {
			kind = wire.EntryDirectory
			size = 0
		}
		entries = append(entries, wire.ListingEntry{
			Path:         relative,
			Kind:         kind,
			Size:         size,
			ModifiedTime: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("listing %q: %w", wirePath, walkErr)
	}
	return entries, nil
}

// ignored reports whether any segment of the relative path matches an
// ignore pattern.
func (d *Dir) ignored(relative string) bool {
	for _, segment := range strings.Split(relative, "/") {
		for _, pattern := range d.settings.Ignore {
			if matched, _ := path.Match(pattern, segment); matched {
				return true
			}
		}
	}
	return false
}

// FetchContent reads path from disk. Host-side fetches are local, so
// ctx only matters if it is already expired.
func (d *Dir) FetchContent(ctx context.Context, wirePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	document, err := d.Open(wirePath)
	if err != nil {
		return "", err
	}
	return document.Content, nil
}
