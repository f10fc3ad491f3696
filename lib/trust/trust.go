// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust holds the governance documents a shard carries and a
// verifier consults: the trust store of allowed publisher keys and the
// local verification policy.
//
// Both documents are plain JSON, written deterministically into the
// shard's governance/ directory at compile time and consumed read-only
// at verification time.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Store is the set of Ed25519 publisher public keys (lowercase hex)
// allowed to sign shards.
type Store struct {
	AllowedKeys []string `json:"allowed_keys"`
}

// Policy is the local verification policy.
type Policy struct {
	// StrictResidualWindows elevates residual gaps inside a trigger
	// window from reported to fatal.
	StrictResidualWindows bool `json:"strict_residual_windows"`
}

// NewStore builds a trust store over the given keys, normalized to
// lowercase hex and sorted so encoding is deterministic regardless of
// argument order.
func NewStore(hexKeys ...string) Store {
	keys := make([]string, len(hexKeys))
	for i, key := range hexKeys {
		keys[i] = strings.ToLower(key)
	}
	sort.Strings(keys)
	return Store{AllowedKeys: keys}
}

// Allows reports whether the hex-encoded public key is trusted.
func (s Store) Allows(hexKey string) bool {
	needle := strings.ToLower(hexKey)
	for _, key := range s.AllowedKeys {
		if key == needle {
			return true
		}
	}
	return false
}

// Encode serializes the store in its canonical byte form.
func (s Store) Encode() []byte {
	return canonicalJSON(s)
}

// Encode serializes the policy in its canonical byte form.
func (p Policy) Encode() []byte {
	return canonicalJSON(p)
}

// LoadStore reads a trust store document from disk.
func LoadStore(path string) (Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Store{}, fmt.Errorf("reading trust store %s: %w", path, err)
	}
	var store Store
	if err := json.Unmarshal(raw, &store); err != nil {
		return Store{}, fmt.Errorf("parsing trust store %s: %w", path, err)
	}
	return NewStore(store.AllowedKeys...), nil
}

// LoadPolicy reads a local policy document from disk.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}
	var policy Policy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	return policy, nil
}

// canonicalJSON marshals with sorted keys, compact separators, and no
// trailing newline. Struct field order is fixed at compile time, so
// encoding/json already yields stable bytes; the helper exists to keep
// every governance document on the same convention.
func canonicalJSON(v any) []byte {
	encoded, err := json.Marshal(v)
	if err != nil {
		// Both document types are plain data; marshaling cannot fail.
		panic(fmt.Sprintf("trust: encoding governance document: %v", err))
	}
	return encoded
}
