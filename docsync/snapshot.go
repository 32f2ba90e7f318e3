// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/tether-collab/tether/wire"
)

// DefaultCompressionThreshold is the content size above which
// full-sync snapshots are zstd-compressed. Small documents are not
// worth the frame overhead.
const DefaultCompressionThreshold = 4 * 1024

var (
	snapshotEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	snapshotDecoder, _ = zstd.NewReader(nil)
)

// EncodeSnapshot builds the full-sync payload for a document,
// compressing the content when it is large enough to benefit.
func EncodeSnapshot(path, content string, version int64) wire.FullSyncPayload {
	return encodeSnapshot(path, content, version, DefaultCompressionThreshold)
}

func encodeSnapshot(path, content string, version int64, threshold int) wire.FullSyncPayload {
	payload := wire.FullSyncPayload{
		Path:     path,
		Version:  version,
		Checksum: Checksum(content),
	}
	if len(content) > threshold {
		compressed := snapshotEncoder.EncodeAll([]byte(content), nil)
		payload.Content = base64.StdEncoding.EncodeToString(compressed)
		payload.Compressed = true
		return payload
	}
	payload.Content = content
	return payload
}

// DecodeSnapshot recovers the document content from a full-sync
// payload and verifies its checksum.
func DecodeSnapshot(payload wire.FullSyncPayload) (string, error) {
	content := payload.Content
	if payload.Compressed {
		compressed, err := base64.StdEncoding.DecodeString(payload.Content)
		if err != nil {
			return "", fmt.Errorf("decoding snapshot for %q: %w", payload.Path, err)
		}
		raw, err := snapshotDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return "", fmt.Errorf("decompressing snapshot for %q: %w", payload.Path, err)
		}
		content = string(raw)
	}
	if sum := Checksum(content); sum != payload.Checksum {
		return "", fmt.Errorf("snapshot checksum mismatch for %q: computed %s, declared %s",
			payload.Path, sum, payload.Checksum)
	}
	return content, nil
}
