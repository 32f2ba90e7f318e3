// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase hashing. The hash lives only for
// the lifetime of one hosting process, so the cost is tuned for
// interactive login, not password storage.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// Passphrase holds a salted Argon2id digest of the session
// passphrase. The cleartext is discarded at construction; candidates
// are compared in constant time.
type Passphrase struct {
	salt []byte
	hash []byte
}

// NewPassphrase hashes secret for later verification.
func NewPassphrase(secret string) (*Passphrase, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating passphrase salt: %w", err)
	}
	return &Passphrase{
		salt: salt,
		hash: argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen),
	}, nil
}

// Verify reports whether candidate matches the stored passphrase.
func (p *Passphrase) Verify(candidate string) bool {
	digest := argon2.IDKey([]byte(candidate), p.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(digest, p.hash) == 1
}
