// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the on-disk record formats of the capsule's
// binary side-channels and the framed-scan engine that discovers
// records in them.
//
// Single source of truth for magic values and record layout. The
// recorder (lib/sim in this repository, the robot in production) and
// the scanner must remain synchronized; changing any constant here
// orphans every capsule already on disk.
//
// Both streams share one frame shape, little-endian, packed:
//
//	magic[4] | len:u32 | frame_id:u64 | ts_ns:u64 | crc:u32 | payload[len]
//
// crc is CRC-32 (IEEE 802.3 polynomial) over the payload only. The
// latent stream ("L1\0\0") is fixed-width and strictly contiguous;
// the residual stream ("R1\0\0") is variable-width and sparse.
package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// HeaderSize is the byte length of a record header: magic(4) +
// len(4) + frame_id(8) + ts_ns(8) + crc(4).
const HeaderSize = 28

// MagicSize is the byte length of a record magic.
const MagicSize = 4

// Record magics.
var (
	MagicLatent   = [MagicSize]byte{'L', '1', 0, 0}
	MagicResidual = [MagicSize]byte{'R', '1', 0, 0}
)

// Stream tags the two binary side-channels. The scan skeleton is
// shared; header and size rules dispatch on this tag.
type Stream string

const (
	StreamLatents   Stream = "latents"
	StreamResiduals Stream = "residuals"
)

// Magic returns the record magic for the stream.
func (s Stream) Magic() [MagicSize]byte {
	if s == StreamLatents {
		return MagicLatent
	}
	return MagicResidual
}

// File returns the capsule-relative file name of the stream.
func (s Stream) File() string {
	if s == StreamLatents {
		return "cam_latents.bin"
	}
	return "cam_residuals.bin"
}

// Header is a decoded record header.
type Header struct {
	Magic       [MagicSize]byte
	Length      uint32
	FrameID     uint64
	TimestampNS uint64
	CRC         uint32
}

// parseHeader decodes a header from buf, which must hold at least
// HeaderSize bytes.
func parseHeader(buf []byte) Header {
	var h Header
	copy(h.Magic[:], buf[0:4])
	h.Length = binary.LittleEndian.Uint32(buf[4:8])
	h.FrameID = binary.LittleEndian.Uint64(buf[8:16])
	h.TimestampNS = binary.LittleEndian.Uint64(buf[16:24])
	h.CRC = binary.LittleEndian.Uint32(buf[24:28])
	return h
}

// AppendRecord appends one framed record for the stream to dst and
// returns the extended slice. This is the encoder used by the capsule
// producer and by round-trip tests.
func AppendRecord(dst []byte, stream Stream, frameID, timestampNS uint64, payload []byte) []byte {
	magic := stream.Magic()
	dst = append(dst, magic[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.LittleEndian.AppendUint64(dst, frameID)
	dst = binary.LittleEndian.AppendUint64(dst, timestampNS)
	dst = binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(payload))
	return append(dst, payload...)
}
