// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/hex"
	"hash/crc32"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/fault"
)

// Status classifies a discovered stream row.
type Status string

const (
	// StatusOK marks a record parsed in its expected position with a
	// valid checksum.
	StatusOK Status = "ok"

	// StatusResynced marks the first valid record found after a
	// byte-wise resynchronization across corruption.
	StatusResynced Status = "resynced"

	// StatusMissing marks a frame the stream should contain but does
	// not: latent frames skipped by a resync, residual frames inside
	// a trigger window with no record. Missing rows are synthesized,
	// never read from disk.
	StatusMissing Status = "missing"
)

// Row is one discovered (or synthesized) stream record. Offset and
// Length cover the whole framed record including its header; both are
// zero for missing rows. ContentHash is the hex BLAKE3 of the payload,
// empty for missing rows.
type Row struct {
	FrameID     uint64
	Stream      Stream
	File        string
	Offset      int64
	Length      int64
	Status      Status
	ContentHash string
}

// Stats summarizes a scan for logging and policy decisions.
type Stats struct {
	// Records is the count of valid records discovered on disk.
	Records int

	// Resyncs is the count of corruption events recovered from.
	Resyncs int

	// SkippedBytes is the total garbage skipped across all resyncs.
	SkippedBytes int64

	// ResyncExhausted is true when a resync ran past the configured
	// window and the scan stopped early; everything after that point
	// in the stream is unknown. The scan adds no rows for it.
	ResyncExhausted bool
}

// Config bounds a scan. LatentPayloadLen comes from the capsule's
// meta.json; the other two from compiler configuration.
type Config struct {
	LatentPayloadLen uint32
	ResidualMaxLen   uint32
	ResyncWindow     int64
}

// ScanConfig derives scan bounds from compiler configuration plus the
// capsule-declared latent payload width.
func ScanConfig(cfg config.ScanConfig, latentPayloadLen uint32) Config {
	return Config{
		LatentPayloadLen: latentPayloadLen,
		ResidualMaxLen:   cfg.ResidualMaxLen,
		ResyncWindow:     cfg.ResyncWindow,
	}
}

// Result is the outcome of scanning one stream.
type Result struct {
	Rows  []Row
	Stats Stats
}

// Scan frame-scans the stream file at path. It returns rows in file
// order and never maps the stream whole into memory: working storage
// is one header plus one payload, bounded by the stream's payload cap,
// plus a fixed 64 KiB search buffer while resynchronizing.
//
// A missing file yields an empty Result — presence requirements are
// the judge's business, not the scanner's.
func Scan(path string, stream Stream, cfg Config) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{}, nil
		}
		return nil, fault.Wrap(fault.IoError, path, err, "opening stream")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fault.Wrap(fault.IoError, path, err, "stat stream")
	}

	s := &scanner{
		r:      file,
		size:   info.Size(),
		path:   path,
		stream: stream,
		cfg:    cfg,
	}
	return s.run()
}

// scanner carries the state of one framed scan.
type scanner struct {
	r      io.ReaderAt
	size   int64
	path   string
	stream Stream
	cfg    Config

	rows  []Row
	stats Stats

	header  [HeaderSize]byte
	payload []byte // reused scratch, grows to the stream's payload cap

	prevFrame uint64
	seenAny   bool

	// pendingResync marks that the next valid record was reached by
	// resynchronization and must carry StatusResynced.
	pendingResync bool
}

func (s *scanner) run() (*Result, error) {
	pos := int64(0)
	for pos < s.size {
		if s.size-pos < HeaderSize {
			return nil, fault.At(fault.Truncated, s.path, pos,
				"%d trailing bytes after last valid record", s.size-pos)
		}

		if _, err := s.r.ReadAt(s.header[:], pos); err != nil {
			return nil, fault.Wrap(fault.IoError, s.path, err, "reading header at %d", pos)
		}
		h := parseHeader(s.header[:])

		// Framing checks. Damage here is survivable: search forward
		// for the next confirmable record.
		if h.Magic != s.stream.Magic() || (s.stream == StreamLatents && h.Length != s.cfg.LatentPayloadLen) {
			next, err := s.resync(pos, pos+1)
			if err != nil {
				return nil, err
			}
			if next < 0 {
				break // window exhausted; stats already updated
			}
			pos = next
			continue
		}

		// Size bound. A declared length past the cap is a length bomb
		// at a trusted record boundary: fatal, not noise.
		if s.stream == StreamResiduals && h.Length > s.cfg.ResidualMaxLen {
			return nil, fault.At(fault.OversizeRecord, s.path, pos,
				"residual payload length %d exceeds cap %d", h.Length, s.cfg.ResidualMaxLen)
		}

		payloadEnd := pos + HeaderSize + int64(h.Length)
		if payloadEnd > s.size {
			return nil, fault.At(fault.Truncated, s.path, pos,
				"record wants %d payload bytes, only %d remain", h.Length, s.size-pos-HeaderSize)
		}

		payload := s.scratch(int(h.Length))
		if _, err := s.r.ReadAt(payload, pos+HeaderSize); err != nil {
			return nil, fault.Wrap(fault.IoError, s.path, err, "reading payload at %d", pos+HeaderSize)
		}

		if crc := crc32.ChecksumIEEE(payload); crc != h.CRC {
			if s.stream == StreamLatents {
				// The latent stream is mandatory evidence. A
				// well-framed record whose bytes rotted is tampering
				// or media failure, and either one ends the run.
				return nil, fault.At(fault.CrcMismatch, s.path, pos,
					"frame %d payload crc %08x, header says %08x", h.FrameID, crc, h.CRC)
			}
			next, err := s.resync(pos, pos+1)
			if err != nil {
				return nil, err
			}
			if next < 0 {
				break
			}
			pos = next
			continue
		}

		if err := s.emit(h, pos, payload); err != nil {
			return nil, err
		}
		pos = payloadEnd
	}

	return &Result{Rows: s.rows, Stats: s.stats}, nil
}

// emit appends the row for a valid record at offset pos, enforcing
// the stream's frame ordering rules and synthesizing missing rows for
// latent frames a resync skipped over.
func (s *scanner) emit(h Header, pos int64, payload []byte) error {
	if s.seenAny {
		switch s.stream {
		case StreamLatents:
			expected := s.prevFrame + 1
			switch {
			case h.FrameID == expected:
				// Contiguous, the only legal case outside resync.
			case s.pendingResync && h.FrameID > expected:
				for frame := expected; frame < h.FrameID; frame++ {
					s.rows = append(s.rows, Row{
						FrameID: frame,
						Stream:  s.stream,
						File:    s.stream.File(),
						Status:  StatusMissing,
					})
				}
			default:
				return fault.At(fault.OutOfOrder, s.path, pos,
					"latent frame %d after frame %d", h.FrameID, s.prevFrame)
			}
		case StreamResiduals:
			if h.FrameID < s.prevFrame {
				return fault.At(fault.OutOfOrder, s.path, pos,
					"residual frame %d after frame %d", h.FrameID, s.prevFrame)
			}
		}
	}
	s.prevFrame = h.FrameID
	s.seenAny = true

	status := StatusOK
	if s.pendingResync {
		status = StatusResynced
		s.pendingResync = false
	}

	digest := blake3.Sum256(payload)
	s.rows = append(s.rows, Row{
		FrameID:     h.FrameID,
		Stream:      s.stream,
		File:        s.stream.File(),
		Offset:      pos,
		Length:      HeaderSize + int64(len(payload)),
		Status:      status,
		ContentHash: hex.EncodeToString(digest[:]),
	})
	s.stats.Records++
	return nil
}

// resync searches forward from `from` for the next confirmable record
// of this stream. failedAt is the offset of the record whose parse
// failed, used for skip accounting. A candidate magic counts only if a
// full parse from it succeeds with a valid checksum.
//
// Returns the confirmed record offset; -1 when the search exhausted
// the configured window (the scan stops and no rows are synthesized
// for the rest of the stream); a Truncated fault when the stream ends before any
// confirmable record.
func (s *scanner) resync(failedAt, from int64) (int64, error) {
	magic := s.stream.Magic()

	const chunkSize = 64 * 1024
	chunk := make([]byte, chunkSize+MagicSize-1)
	limit := from + s.cfg.ResyncWindow

	pos := from
	for pos < s.size {
		if pos >= limit {
			s.stats.ResyncExhausted = true
			return -1, nil
		}

		n, err := s.r.ReadAt(chunk, pos)
		if err != nil && err != io.EOF {
			return 0, fault.Wrap(fault.IoError, s.path, err, "resync read at %d", pos)
		}
		window := chunk[:n]

		searched := 0
		for {
			rel := bytes.Index(window[searched:], magic[:])
			if rel < 0 {
				break
			}
			candidate := pos + int64(searched+rel)
			if candidate >= limit {
				s.stats.ResyncExhausted = true
				return -1, nil
			}
			if s.confirm(candidate) {
				s.stats.Resyncs++
				s.stats.SkippedBytes += candidate - failedAt
				s.pendingResync = true
				return candidate, nil
			}
			searched += rel + 1
		}

		if int64(n) < chunkSize+MagicSize-1 {
			break // reached EOF
		}
		// Overlap by MagicSize-1 so a magic split across chunk
		// boundaries is still found.
		pos += chunkSize
	}

	return 0, fault.At(fault.Truncated, s.path, failedAt,
		"stream ends before another valid %s record", s.stream)
}

// confirm attempts a full parse at candidate: magic, variant size
// rules, payload bounds, checksum. Only a completely valid record
// confirms a sync point — a stray magic inside garbage does not.
func (s *scanner) confirm(candidate int64) bool {
	if s.size-candidate < HeaderSize {
		return false
	}
	var headerBuf [HeaderSize]byte
	if _, err := s.r.ReadAt(headerBuf[:], candidate); err != nil {
		return false
	}
	h := parseHeader(headerBuf[:])
	if h.Magic != s.stream.Magic() {
		return false
	}
	if s.stream == StreamLatents && h.Length != s.cfg.LatentPayloadLen {
		return false
	}
	if s.stream == StreamResiduals && h.Length > s.cfg.ResidualMaxLen {
		return false
	}
	if candidate+HeaderSize+int64(h.Length) > s.size {
		return false
	}
	payload := s.scratch(int(h.Length))
	if _, err := s.r.ReadAt(payload, candidate+HeaderSize); err != nil {
		return false
	}
	return crc32.ChecksumIEEE(payload) == h.CRC
}

// scratch returns the reusable payload buffer sized to n.
func (s *scanner) scratch(n int) []byte {
	if cap(s.payload) < n {
		s.payload = make([]byte, n)
	}
	return s.payload[:n]
}
