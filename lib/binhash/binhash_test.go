// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileMatchesHashBytes(t *testing.T) {
	content := []byte(`{"frame_id":0,"t":"2026-01-01T00:00:00Z","kind":"observation"}` + "\n")
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != HashBytes(content) {
		t.Error("HashFile and HashBytes disagree on the same content")
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	digest := HashBytes([]byte("payload"))
	formatted := FormatDigest(digest)
	if len(formatted) != 64 {
		t.Errorf("formatted digest is %d chars, want 64", len(formatted))
	}
	parsed, err := ParseDigest(formatted)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != digest {
		t.Error("ParseDigest(FormatDigest(d)) != d")
	}
}

func TestParseDigestRejectsBadInput(t *testing.T) {
	if _, err := ParseDigest("zzzz"); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := ParseDigest("abcd"); err == nil {
		t.Error("expected error for short input")
	}
}
