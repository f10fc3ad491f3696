// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for AXM packages.
//
// The corruption helpers ([FlipByte], [Truncate]) exist because half
// the compiler's test surface is adversarial: tests tamper with
// capsule and shard files and assert the pipeline notices. Keeping
// the tampering in one place makes those tests read as intent
// ("flip byte 10") rather than file plumbing.
//
// All helpers call t.Fatal on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on other AXM packages.
package testutil

import (
	"os"
	"testing"
)

// FlipByte XORs the byte at offset in the file with mask. The file
// must exist and be long enough.
func FlipByte(t *testing.T, path string, offset int64, mask byte) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s to corrupt it: %v", path, err)
	}
	if offset < 0 || offset >= int64(len(content)) {
		t.Fatalf("corruption offset %d outside %s (%d bytes)", offset, path, len(content))
	}
	content[offset] ^= mask
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing corrupted %s: %v", path, err)
	}
}

// Truncate cuts the file to length bytes.
func Truncate(t *testing.T, path string, length int64) {
	t.Helper()
	if err := os.Truncate(path, length); err != nil {
		t.Fatalf("truncating %s: %v", path, err)
	}
}

// Append appends extra bytes to the file.
func Append(t *testing.T, path string, extra []byte) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("opening %s for append: %v", path, err)
	}
	defer file.Close()
	if _, err := file.Write(extra); err != nil {
		t.Fatalf("appending to %s: %v", path, err)
	}
}
