// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/tether-collab/tether/wire"
)

func TestMirrorReplaceAndOpen(t *testing.T) {
	t.Parallel()

	mirror := NewMirror()
	if _, err := mirror.Open("a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open before sync = %v, want ErrNotFound", err)
	}

	mirror.Replace("a.txt", "synced content", 7)
	document, err := mirror.Open("a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if document.Content != "synced content" || document.Version != 7 {
		t.Fatalf("document = %+v", document)
	}

	if err := mirror.Update("a.txt", "edited", 8); err != nil {
		t.Fatalf("Update: %v", err)
	}
	document, _ = mirror.Open("a.txt")
	if document.Content != "edited" || document.Version != 8 {
		t.Fatalf("document after update = %+v", document)
	}

	mirror.Forget("a.txt")
	if _, err := mirror.Open("a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open after forget = %v, want ErrNotFound", err)
	}
}

func TestMirrorUpdateUnknownPath(t *testing.T) {
	t.Parallel()

	mirror := NewMirror()
	if err := mirror.Update("ghost.txt", "x", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update = %v, want ErrNotFound", err)
	}
}

func TestMirrorListFiltersByPrefix(t *testing.T) {
	t.Parallel()

	mirror := NewMirror()
	mirror.SetListing([]wire.ListingEntry{
		{Path: "README.md", Kind: wire.EntryFile},
		{Path: "src", Kind: wire.EntryDirectory},
		{Path: "src/main.go", Kind: wire.EntryFile},
		{Path: "src/util.go", Kind: wire.EntryFile},
	})

	all, err := mirror.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("full listing = %v", all)
	}

	under, err := mirror.List("src")
	if err != nil {
		t.Fatalf("List(src): %v", err)
	}
	if len(under) != 2 || under[0].Path != "src/main.go" || under[1].Path != "src/util.go" {
		t.Fatalf("src listing = %v", under)
	}
}

func TestMirrorFetchContent(t *testing.T) {
	t.Parallel()

	t.Run("synced content needs no fetcher", func(t *testing.T) {
		t.Parallel()
		mirror := NewMirror()
		mirror.Replace("a.txt", "local", 1)
		content, err := mirror.FetchContent(context.Background(), "a.txt")
		if err != nil || content != "local" {
			t.Fatalf("FetchContent = %q, %v", content, err)
		}
	})

	t.Run("fetcher supplies unsynced content", func(t *testing.T) {
		t.Parallel()
		mirror := NewMirror()
		mirror.SetFetcher(func(ctx context.Context, path string) (string, bool, error) {
			if path != "remote.txt" {
				t.Fatalf("fetch path = %q", path)
			}
			return "from host", true, nil
		})
		content, err := mirror.FetchContent(context.Background(), "remote.txt")
		if err != nil || content != "from host" {
			t.Fatalf("FetchContent = %q, %v", content, err)
		}
	})

	t.Run("timeout resolves to empty content", func(t *testing.T) {
		t.Parallel()
		mirror := NewMirror()
		mirror.SetFetcher(func(ctx context.Context, path string) (string, bool, error) {
			return "", false, context.DeadlineExceeded
		})
		content, err := mirror.FetchContent(context.Background(), "slow.txt")
		if err != nil {
			t.Fatalf("FetchContent error = %v, want nil on timeout", err)
		}
		if content != "" {
			t.Fatalf("content = %q, want empty", content)
		}
	})

	t.Run("host has no such path", func(t *testing.T) {
		t.Parallel()
		mirror := NewMirror()
		mirror.SetFetcher(func(ctx context.Context, path string) (string, bool, error) {
			return "", false, nil
		})
		if _, err := mirror.FetchContent(context.Background(), "ghost.txt"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("FetchContent = %v, want ErrNotFound", err)
		}
	})
}
