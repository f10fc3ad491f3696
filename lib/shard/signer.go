// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Signer holds the publisher's Ed25519 identity.
type Signer struct {
	private ed25519.PrivateKey
}

// NewSigner builds a signer from a 32-byte Ed25519 seed.
func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &Signer{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// LoadSigner reads a seed file: 64 hex characters, optionally followed
// by a newline. Key files live outside the capsule and the shard.
func LoadSigner(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key %s: %w", path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding signing key %s: %w", path, err)
	}
	return NewSigner(seed)
}

// Sign signs message, returning the 64-byte raw signature.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.private, message)
}

// Public returns the 32-byte public key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.private.Public().(ed25519.PublicKey)
}

// PublicHex returns the lowercase hex public key, the form used in
// manifests and trust stores.
func (s *Signer) PublicHex() string {
	return hex.EncodeToString(s.Public())
}
