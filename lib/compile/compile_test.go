// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package compile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/clock"
	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/graph"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/sim"
	"github.com/axm-foundation/axm/lib/testutil"
	"github.com/axm-foundation/axm/lib/wire"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	signer, err := shard.NewSigner(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		Config: config.Defaults(),
		Signer: signer,
		Clock:  clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func simOptions(triggerAt int) sim.Options {
	return sim.Options{
		Frames:             100,
		TriggerAt:          triggerAt,
		PreWindow:          5,
		PostWindow:         5,
		LatentPayloadLen:   64,
		ResidualPayloadLen: 256,
		Seed:               7,
	}
}

func generate(t *testing.T, opts sim.Options) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "capsule")
	if err := sim.Generate(dir, opts); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readStreams(t *testing.T, shardDir string) []graph.StreamRow {
	t.Helper()
	rows, err := shard.ReadTable[graph.StreamRow](
		filepath.Join(shardDir, filepath.FromSlash(shard.StreamsFile)))
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestCompileSafeScenario(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))
	shardDir := filepath.Join(t.TempDir(), "shard")

	manifest, err := Run(context.Background(), capsuleDir, shardDir, testOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Spec != shard.SpecVersion || manifest.MerkleRoot == "" {
		t.Errorf("manifest = %+v", manifest)
	}

	rows := readStreams(t, shardDir)
	latents, residuals := 0, 0
	for _, row := range rows {
		switch row.Stream {
		case "latents":
			latents++
		case "residuals":
			residuals++
		}
	}
	if latents != 100 || residuals != 0 {
		t.Errorf("latent rows = %d, residual rows = %d; want 100, 0", latents, residuals)
	}
}

func TestCompileCrashScenario(t *testing.T) {
	capsuleDir := generate(t, simOptions(50))
	shardDir := filepath.Join(t.TempDir(), "shard")

	if _, err := Run(context.Background(), capsuleDir, shardDir, testOptions(t)); err != nil {
		t.Fatal(err)
	}

	rows := readStreams(t, shardDir)
	var residualFrames []int64
	latents := 0
	for _, row := range rows {
		switch row.Stream {
		case "latents":
			latents++
		case "residuals":
			residualFrames = append(residualFrames, row.FrameID)
			if row.Status != string(wire.StatusOK) {
				t.Errorf("residual frame %d status = %s", row.FrameID, row.Status)
			}
		}
	}
	if latents != 100 {
		t.Errorf("latent rows = %d, want 100", latents)
	}
	if len(residualFrames) != 11 || residualFrames[0] != 45 || residualFrames[10] != 55 {
		t.Errorf("residual frames = %v, want [45..55]", residualFrames)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	capsuleDir := generate(t, simOptions(50))
	shardA := filepath.Join(t.TempDir(), "a")
	shardB := filepath.Join(t.TempDir(), "b")

	if _, err := Run(context.Background(), capsuleDir, shardA, testOptions(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), capsuleDir, shardB, testOptions(t)); err != nil {
		t.Fatal(err)
	}

	err := filepath.Walk(shardA, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() {
			return walkErr
		}
		rel, err := filepath.Rel(shardA, path)
		if err != nil {
			return err
		}
		a, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(filepath.Join(shardB, rel))
		if err != nil {
			return err
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between compilations of the same capsule", rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCompileLatentTamperFails(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))

	// Flip a payload byte in the first latent record.
	testutil.FlipByte(t, filepath.Join(capsuleDir, capsule.LatentsFile), wire.HeaderSize+10, 0x01)

	shardDir := filepath.Join(t.TempDir(), "shard")
	_, err := Run(context.Background(), capsuleDir, shardDir, testOptions(t))
	if !fault.IsKind(err, fault.CrcMismatch) {
		t.Errorf("kind = %v, want crc_mismatch", fault.KindOf(err))
	}
	if _, statErr := os.Stat(shardDir); !os.IsNotExist(statErr) {
		t.Error("failed compilation left a partial shard behind")
	}
}

func TestCompileOversizeResidualFails(t *testing.T) {
	capsuleDir := generate(t, simOptions(50))
	opts := testOptions(t)
	opts.Config.Scan.ResidualMaxLen = 100 // below the simulated 256-byte payloads

	_, err := Run(context.Background(), capsuleDir, filepath.Join(t.TempDir(), "shard"), opts)
	if !fault.IsKind(err, fault.OversizeRecord) {
		t.Errorf("kind = %v, want oversize_record", fault.KindOf(err))
	}
}

func TestCompileUnexpectedResidualFails(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))

	// A safe run must not have residual bytes; plant valid records.
	var rogue []byte
	rogue = wire.AppendRecord(rogue, wire.StreamResiduals, 10, 0, []byte("rogue evidence"))
	if err := os.WriteFile(filepath.Join(capsuleDir, capsule.ResidualsFile), rogue, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), capsuleDir, filepath.Join(t.TempDir(), "shard"), testOptions(t))
	if !fault.IsKind(err, fault.UnexpectedResidual) {
		t.Errorf("kind = %v, want unexpected_residual", fault.KindOf(err))
	}
}

func TestCompileRefusesNonEmptyOutput(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))
	shardDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(shardDir, "squatter"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Run(context.Background(), capsuleDir, shardDir, testOptions(t))
	if !fault.IsKind(err, fault.IoError) {
		t.Errorf("kind = %v, want io_error", fault.KindOf(err))
	}
}

func TestCompileRequiresSigner(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))
	opts := testOptions(t)
	opts.Signer = nil
	_, err := Run(context.Background(), capsuleDir, filepath.Join(t.TempDir(), "shard"), opts)
	if !fault.IsKind(err, fault.InvalidInput) {
		t.Errorf("kind = %v, want invalid_input", fault.KindOf(err))
	}
}

func TestCompileCancelledContext(t *testing.T) {
	capsuleDir := generate(t, simOptions(-1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shardDir := filepath.Join(t.TempDir(), "shard")
	_, err := Run(ctx, capsuleDir, shardDir, testOptions(t))
	if err == nil {
		t.Fatal("cancelled compilation succeeded")
	}
	if _, statErr := os.Stat(shardDir); !os.IsNotExist(statErr) {
		t.Error("cancelled compilation left output behind")
	}
}

func TestCompileResyncedCapsuleStillCompiles(t *testing.T) {
	// A residual record corrupted mid-payload costs that record but
	// nothing else; the judge reports the gap without failing.
	capsuleDir := generate(t, simOptions(50))
	recordSize := int64(wire.HeaderSize + 256)
	testutil.FlipByte(t, filepath.Join(capsuleDir, capsule.ResidualsFile),
		3*recordSize+wire.HeaderSize+100, 0xFF) // frame 48's payload

	shardDir := filepath.Join(t.TempDir(), "shard")
	if _, err := Run(context.Background(), capsuleDir, shardDir, testOptions(t)); err != nil {
		t.Fatal(err)
	}

	statuses := map[int64]string{}
	for _, row := range readStreams(t, shardDir) {
		if row.Stream == "residuals" {
			statuses[row.FrameID] = row.Status
		}
	}
	if statuses[48] != string(wire.StatusMissing) {
		t.Errorf("frame 48 status = %q, want missing", statuses[48])
	}
	if statuses[49] != string(wire.StatusResynced) {
		t.Errorf("frame 49 status = %q, want resynced", statuses[49])
	}
	if statuses[50] != string(wire.StatusOK) {
		t.Errorf("frame 50 status = %q, want ok", statuses[50])
	}
}

func TestCompileStrictPolicyElevatesGaps(t *testing.T) {
	capsuleDir := generate(t, simOptions(50))
	recordSize := int64(wire.HeaderSize + 256)
	testutil.FlipByte(t, filepath.Join(capsuleDir, capsule.ResidualsFile),
		3*recordSize+wire.HeaderSize+100, 0xFF)

	opts := testOptions(t)
	opts.Policy.StrictResidualWindows = true
	_, err := Run(context.Background(), capsuleDir, filepath.Join(t.TempDir(), "shard"), opts)
	if !fault.IsKind(err, fault.ResyncLimit) {
		t.Errorf("kind = %v, want resync_limit", fault.KindOf(err))
	}
}
