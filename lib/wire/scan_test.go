// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/axm-foundation/axm/lib/fault"
)

func testConfig() Config {
	return Config{
		LatentPayloadLen: 32,
		ResidualMaxLen:   1024,
		ResyncWindow:     1 << 20,
	}
}

// latentPayload produces a deterministic payload for a frame.
func latentPayload(frame uint64, length int) []byte {
	payload := make([]byte, length)
	for i := range payload {
		payload[i] = byte(frame + uint64(i)*7)
	}
	return payload
}

func buildLatents(frames int, payloadLen int) []byte {
	var stream []byte
	for frame := 0; frame < frames; frame++ {
		stream = AppendRecord(stream, StreamLatents, uint64(frame), uint64(frame)*1e6, latentPayload(uint64(frame), payloadLen))
	}
	return stream
}

func writeStream(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanLatentsRoundTrip(t *testing.T) {
	cfg := testConfig()
	path := writeStream(t, "cam_latents.bin", buildLatents(10, 32))

	result, err := Scan(path, StreamLatents, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 10 || result.Stats.Records != 10 {
		t.Fatalf("got %d rows / %d records, want 10 / 10", len(result.Rows), result.Stats.Records)
	}

	recordSize := int64(HeaderSize + 32)
	for i, row := range result.Rows {
		if row.FrameID != uint64(i) {
			t.Errorf("row %d frame = %d", i, row.FrameID)
		}
		if row.Status != StatusOK {
			t.Errorf("row %d status = %s", i, row.Status)
		}
		if row.Offset != int64(i)*recordSize || row.Length != recordSize {
			t.Errorf("row %d placement = (%d, %d)", i, row.Offset, row.Length)
		}
		digest := blake3.Sum256(latentPayload(uint64(i), 32))
		if row.ContentHash != hex.EncodeToString(digest[:]) {
			t.Errorf("row %d content hash mismatch", i)
		}
		if row.File != "cam_latents.bin" {
			t.Errorf("row %d file = %q", i, row.File)
		}
	}
}

func TestScanMissingFileIsEmpty(t *testing.T) {
	result, err := Scan(filepath.Join(t.TempDir(), "absent.bin"), StreamResiduals, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("got %d rows from a missing file", len(result.Rows))
	}
}

func TestScanEmptyFileIsEmpty(t *testing.T) {
	path := writeStream(t, "cam_residuals.bin", nil)
	result, err := Scan(path, StreamResiduals, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("got %d rows from an empty file", len(result.Rows))
	}
}

func TestScanLatentPayloadTamperIsFatal(t *testing.T) {
	data := buildLatents(5, 32)
	// Flip one payload byte of the third record.
	offset := 2*(HeaderSize+32) + HeaderSize + 4
	data[offset] ^= 0x01
	path := writeStream(t, "cam_latents.bin", data)

	_, err := Scan(path, StreamLatents, testConfig())
	if !fault.IsKind(err, fault.CrcMismatch) {
		t.Errorf("kind = %v, want crc_mismatch", fault.KindOf(err))
	}
}

func TestScanLatentFrameGapIsFatal(t *testing.T) {
	var data []byte
	data = AppendRecord(data, StreamLatents, 0, 0, latentPayload(0, 32))
	data = AppendRecord(data, StreamLatents, 2, 0, latentPayload(2, 32)) // frame 1 never written
	path := writeStream(t, "cam_latents.bin", data)

	_, err := Scan(path, StreamLatents, testConfig())
	if !fault.IsKind(err, fault.OutOfOrder) {
		t.Errorf("kind = %v, want out_of_order", fault.KindOf(err))
	}
}

func TestScanLatentMagicCorruptionResyncs(t *testing.T) {
	data := buildLatents(6, 32)
	// Smash the magic of record 3: its frame becomes unrecoverable,
	// the scan resyncs onto record 4.
	data[3*(HeaderSize+32)] = 'X'
	path := writeStream(t, "cam_latents.bin", data)

	result, err := Scan(path, StreamLatents, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	byFrame := map[uint64]Row{}
	for _, row := range result.Rows {
		byFrame[row.FrameID] = row
	}
	if byFrame[3].Status != StatusMissing {
		t.Errorf("frame 3 status = %s, want missing", byFrame[3].Status)
	}
	if byFrame[4].Status != StatusResynced {
		t.Errorf("frame 4 status = %s, want resynced", byFrame[4].Status)
	}
	if byFrame[5].Status != StatusOK {
		t.Errorf("frame 5 status = %s, want ok", byFrame[5].Status)
	}
	if result.Stats.Resyncs != 1 || result.Stats.SkippedBytes == 0 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestScanResidualCorruptionRecovers(t *testing.T) {
	// Invariant: a single-byte corruption in the middle of a residual
	// record yields exactly one resynced row for the next valid record
	// and no loss of subsequent records.
	var data []byte
	for frame := uint64(45); frame <= 55; frame++ {
		data = AppendRecord(data, StreamResiduals, frame, frame*1e6, latentPayload(frame, 100))
	}
	// Corrupt the middle of frame 50's payload.
	recordSize := HeaderSize + 100
	corrupt := 5*recordSize + HeaderSize + 50
	data[corrupt] ^= 0xFF
	path := writeStream(t, "cam_residuals.bin", data)

	result, err := Scan(path, StreamResiduals, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 10 {
		t.Fatalf("got %d rows, want 10 (frame 50 lost)", len(result.Rows))
	}

	resynced := 0
	for _, row := range result.Rows {
		if row.FrameID == 50 {
			t.Error("corrupted frame 50 was emitted")
		}
		if row.Status == StatusResynced {
			resynced++
			if row.FrameID != 51 {
				t.Errorf("resynced row is frame %d, want 51", row.FrameID)
			}
		}
	}
	if resynced != 1 {
		t.Errorf("%d resynced rows, want exactly 1", resynced)
	}
	if result.Stats.Resyncs != 1 {
		t.Errorf("stats.Resyncs = %d, want 1", result.Stats.Resyncs)
	}
}

func TestScanOversizeResidualIsFatal(t *testing.T) {
	cfg := testConfig()
	// Craft a header declaring a payload one past the cap.
	var data []byte
	data = append(data, MagicResidual[:]...)
	data = binary.LittleEndian.AppendUint32(data, cfg.ResidualMaxLen+1)
	data = binary.LittleEndian.AppendUint64(data, 7) // frame_id
	data = binary.LittleEndian.AppendUint64(data, 0) // ts_ns
	data = binary.LittleEndian.AppendUint32(data, 0) // crc
	path := writeStream(t, "cam_residuals.bin", data)

	_, err := Scan(path, StreamResiduals, cfg)
	if !fault.IsKind(err, fault.OversizeRecord) {
		t.Errorf("kind = %v, want oversize_record", fault.KindOf(err))
	}
}

func TestScanTruncatedPayloadIsFatal(t *testing.T) {
	data := buildLatents(3, 32)
	path := writeStream(t, "cam_latents.bin", data[:len(data)-10])

	_, err := Scan(path, StreamLatents, testConfig())
	if !fault.IsKind(err, fault.Truncated) {
		t.Errorf("kind = %v, want truncated", fault.KindOf(err))
	}
}

func TestScanTrailingGarbageShorterThanHeaderIsFatal(t *testing.T) {
	data := buildLatents(2, 32)
	data = append(data, 0xAB, 0xCD)
	path := writeStream(t, "cam_latents.bin", data)

	_, err := Scan(path, StreamLatents, testConfig())
	if !fault.IsKind(err, fault.Truncated) {
		t.Errorf("kind = %v, want truncated", fault.KindOf(err))
	}
}

func TestScanResidualOutOfOrderIsFatal(t *testing.T) {
	var data []byte
	data = AppendRecord(data, StreamResiduals, 5, 0, latentPayload(5, 10))
	data = AppendRecord(data, StreamResiduals, 3, 0, latentPayload(3, 10))
	path := writeStream(t, "cam_residuals.bin", data)

	_, err := Scan(path, StreamResiduals, testConfig())
	if !fault.IsKind(err, fault.OutOfOrder) {
		t.Errorf("kind = %v, want out_of_order", fault.KindOf(err))
	}
}

func TestScanResidualSparseFramesAllowed(t *testing.T) {
	var data []byte
	for _, frame := range []uint64{10, 20, 30} {
		data = AppendRecord(data, StreamResiduals, frame, 0, latentPayload(frame, 64))
	}
	path := writeStream(t, "cam_residuals.bin", data)

	result, err := Scan(path, StreamResiduals, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(result.Rows))
	}
}

func TestScanResyncWindowExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.ResyncWindow = 64

	var data []byte
	data = AppendRecord(data, StreamResiduals, 1, 0, latentPayload(1, 16))
	garbage := make([]byte, 512) // larger than the window
	for i := range garbage {
		garbage[i] = 0xEE
	}
	data = append(data, garbage...)
	data = AppendRecord(data, StreamResiduals, 2, 0, latentPayload(2, 16))
	path := writeStream(t, "cam_residuals.bin", data)

	result, err := Scan(path, StreamResiduals, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Stats.ResyncExhausted {
		t.Error("ResyncExhausted not reported")
	}
	if len(result.Rows) != 1 || result.Rows[0].FrameID != 1 {
		t.Errorf("rows = %+v, want only frame 1", result.Rows)
	}
}

func TestScanLatentWrongLengthResyncs(t *testing.T) {
	// A latent record declaring the wrong payload width is framing
	// damage, not a checksum failure: the scan resyncs past it.
	var data []byte
	data = AppendRecord(data, StreamLatents, 0, 0, latentPayload(0, 32))
	data = AppendRecord(data, StreamLatents, 1, 0, latentPayload(1, 16)) // wrong width
	data = AppendRecord(data, StreamLatents, 2, 0, latentPayload(2, 32))
	path := writeStream(t, "cam_latents.bin", data)

	result, err := Scan(path, StreamLatents, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	byFrame := map[uint64]Row{}
	for _, row := range result.Rows {
		byFrame[row.FrameID] = row
	}
	if byFrame[1].Status != StatusMissing {
		t.Errorf("frame 1 status = %s, want missing", byFrame[1].Status)
	}
	if byFrame[2].Status != StatusResynced {
		t.Errorf("frame 2 status = %s, want resynced", byFrame[2].Status)
	}
}
