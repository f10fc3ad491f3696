// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package shard lays out and signs the compiled evidence artifact.
//
// A shard is immutable once finalized. The layout is fixed:
//
//	manifest.json
//	content/capsule.json
//	graph/{entities,claims,provenance}.parquet
//	evidence/{spans,streams}.parquet
//	governance/{trust_store.json,local_policy.json}
//	sig/{manifest.sig,publisher.pub}
//
// sig/manifest.sig is written last and serves as the commit point: a
// shard without it is incomplete and must be discarded.
package shard

import (
	"encoding/json"

	"github.com/axm-foundation/axm/lib/fault"
)

// SpecVersion identifies the shard format this writer emits.
const SpecVersion = "axm-shard/1"

// Shard-relative paths.
const (
	ManifestFile    = "manifest.json"
	CapsuleInfoFile = "content/capsule.json"
	EntitiesFile    = "graph/entities.parquet"
	ClaimsFile      = "graph/claims.parquet"
	ProvenanceFile  = "graph/provenance.parquet"
	SpansFile       = "evidence/spans.parquet"
	StreamsFile     = "evidence/streams.parquet"
	TrustStoreFile  = "governance/trust_store.json"
	PolicyFile      = "governance/local_policy.json"
	SignatureFile   = "sig/manifest.sig"
	PublisherFile   = "sig/publisher.pub"
)

// Manifest is the shard's root document. Everything a verifier needs
// that is not itself a file: the capsule binding, the tree root, and
// the publisher identity.
type Manifest struct {
	CapsuleHash string
	Created     string
	MerkleRoot  string
	Publisher   string
	Spec        string
}

// Encode serializes the manifest in its canonical byte form: UTF-8,
// sorted keys, compact separators, no trailing whitespace. These are
// the exact bytes the publisher signs — any other serialization of
// the same values is a different document.
func (m Manifest) Encode() []byte {
	// encoding/json sorts map keys; a map (not the struct) guarantees
	// the sorted-key property independent of field order above.
	encoded, err := json.Marshal(map[string]string{
		"capsule_hash": m.CapsuleHash,
		"created":      m.Created,
		"merkle_root":  m.MerkleRoot,
		"publisher":    m.Publisher,
		"spec":         m.Spec,
	})
	if err != nil {
		panic("shard: encoding manifest: " + err.Error())
	}
	return encoded
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(raw []byte) (Manifest, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Manifest{}, fault.Wrap(fault.ManifestInvalid, ManifestFile, err, "parsing manifest")
	}
	m := Manifest{
		CapsuleHash: fields["capsule_hash"],
		Created:     fields["created"],
		MerkleRoot:  fields["merkle_root"],
		Publisher:   fields["publisher"],
		Spec:        fields["spec"],
	}
	for name, value := range map[string]string{
		"capsule_hash": m.CapsuleHash,
		"created":      m.Created,
		"merkle_root":  m.MerkleRoot,
		"publisher":    m.Publisher,
		"spec":         m.Spec,
	} {
		if value == "" {
			return Manifest{}, fault.New(fault.ManifestInvalid, ManifestFile, "manifest is missing %s", name)
		}
	}
	return m, nil
}
