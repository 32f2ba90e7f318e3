// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace defines the boundary between the sync engine and
// the text workspace it shares.
//
// [Workspace] is the collaborator contract: open, write, list, and
// fetch, keyed by slash-separated relative paths. Two implementations
// exist. [Dir] is the host side, rooted at a share directory on disk;
// writes are durable and atomic (temporary file then rename), and
// paths are confined to the root — traversal outside it is rejected.
// [Mirror] is the client side: a derived in-memory cache of the
// host's content that never touches local disk and is never a source
// of truth.
//
// The host's share settings live in a .tether.jsonc file in the share
// root (JSONC: comments and trailing commas allowed): the paths to
// open at session start, the read-only default for new clients, and
// ignore patterns for the listing. A missing settings file yields
// defaults.
package workspace
