// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA256 content hashing for capsule and
// shard files.
//
// AXM anchors every claim to raw bytes: the capsule's events.jsonl is
// identified by its SHA256 digest (the source_hash that span and
// provenance rows reference), and the verifier re-derives the same
// digest from disk to prove a shard still describes the capsule it was
// compiled from. All digests flow through this package so the hex
// representation is identical everywhere it appears — manifests,
// parquet rows, and log output.
//
// The API surface is four functions:
//
//   - [HashFile] -- streams a file through SHA256, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [HashBytes] -- digests an in-memory byte slice
//   - [FormatDigest] -- converts a [32]byte digest to its canonical
//     hex-encoded string representation
//   - [ParseDigest] -- parses a hex-encoded digest string back to a
//     [32]byte array, validating length and encoding
//
// This package has no dependencies on other AXM packages.
package binhash
