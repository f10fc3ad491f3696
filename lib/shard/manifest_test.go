// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"strings"
	"testing"

	"github.com/axm-foundation/axm/lib/fault"
)

func sampleManifest() Manifest {
	return Manifest{
		CapsuleHash: strings.Repeat("ab", 32),
		Created:     "2026-01-01T00:00:00Z",
		MerkleRoot:  strings.Repeat("cd", 32),
		Publisher:   strings.Repeat("ef", 32),
		Spec:        SpecVersion,
	}
}

func TestManifestEncodeIsCanonical(t *testing.T) {
	encoded := string(sampleManifest().Encode())

	// Sorted keys, compact separators, single line, no trailing
	// whitespace.
	if strings.Contains(encoded, "\n") || strings.Contains(encoded, ": ") {
		t.Errorf("encoding is not compact: %s", encoded)
	}
	order := []string{`"capsule_hash"`, `"created"`, `"merkle_root"`, `"publisher"`, `"spec"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(encoded, key)
		if idx < 0 {
			t.Fatalf("key %s missing from %s", key, encoded)
		}
		if idx < last {
			t.Errorf("key %s out of sorted order in %s", key, encoded)
		}
		last = idx
	}
}

func TestManifestEncodeParseRoundTrip(t *testing.T) {
	m := sampleManifest()
	parsed, err := ParseManifest(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != m {
		t.Errorf("round trip changed manifest: %+v vs %+v", parsed, m)
	}
}

func TestParseManifestRejectsMissingFields(t *testing.T) {
	_, err := ParseManifest([]byte(`{"spec":"axm-shard/1"}`))
	if !fault.IsKind(err, fault.ManifestInvalid) {
		t.Errorf("kind = %v, want manifest_invalid", fault.KindOf(err))
	}
}

func TestParseManifestRejectsGarbage(t *testing.T) {
	_, err := ParseManifest([]byte("][not json"))
	if !fault.IsKind(err, fault.ManifestInvalid) {
		t.Errorf("kind = %v, want manifest_invalid", fault.KindOf(err))
	}
}
