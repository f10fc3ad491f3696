// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorStringIncludesLocation(t *testing.T) {
	err := At(CrcMismatch, "cam_latents.bin", 1234, "payload checksum 0xdeadbeef != 0x01020304")
	got := err.Error()
	want := "crc_mismatch: cam_latents.bin@1234: payload checksum 0xdeadbeef != 0x01020304"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringWithoutOffset(t *testing.T) {
	err := New(MissingMeta, "capsule-x", "meta.json not found")
	if got := err.Error(); got != "missing_meta: capsule-x: meta.json not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestKindOfUnwrapsThroughLayers(t *testing.T) {
	inner := At(OversizeRecord, "cam_residuals.bin", 99, "declared length 17000000")
	wrapped := fmt.Errorf("scanning residuals: %w", inner)
	if got := KindOf(wrapped); got != OversizeRecord {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, OversizeRecord)
	}
}

func TestKindOfForeignErrorIsIoError(t *testing.T) {
	if got := KindOf(errors.New("disk on fire")); got != IoError {
		t.Errorf("KindOf(foreign) = %q, want %q", got, IoError)
	}
}

func TestExitCodesAreStableAndDistinct(t *testing.T) {
	kinds := []Kind{
		InvalidInput, MissingMeta, MissingEvents, UnsupportedEncoding,
		Truncated, BadMagic, CrcMismatch, OutOfOrder, OversizeRecord,
		ResyncLimit, LatentMissing, UnexpectedResidual, ManifestInvalid,
		SignatureInvalid, MerkleMismatch, UntrustedPublisher,
		NonDeterministicLibrary, IoError,
	}
	seen := make(map[int]Kind)
	for _, kind := range kinds {
		code := kind.ExitCode()
		if code < 10 {
			t.Errorf("kind %q has exit code %d below the reserved range", kind, code)
		}
		if prior, dup := seen[code]; dup {
			t.Errorf("kinds %q and %q share exit code %d", prior, kind, code)
		}
		seen[code] = kind
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(Truncated, "cam_latents.bin", cause, "mid-record EOF")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}
