// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum returns the hex BLAKE3 digest of the document content's
// UTF-8 bytes. Both sides compute it over their own replica; equality
// at a quiet point is the convergence check.
func Checksum(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
