// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"bytes"
	"encoding/json"

	"github.com/axm-foundation/axm/lib/fault"
)

// Kind classifies an event line. Anything the compiler does not
// recognize is KindOther: unknown kinds are narrative color, not
// errors, and still get spans.
type Kind string

const (
	KindObservation   Kind = "observation"
	KindSafetyTrigger Kind = "safety_trigger"
	KindOther         Kind = "other"
)

// Event is one parsed line of events.jsonl plus its provenance: the
// absolute byte range the line occupies in the raw file, exclusive of
// the terminating LF.
type Event struct {
	FrameID uint64
	T       string
	Kind    Kind

	// RawKind preserves the kind string as written when Kind is
	// KindOther.
	RawKind string

	// Reason is the optional trigger reason on safety_trigger events.
	Reason string

	ByteStart int64
	ByteEnd   int64

	// Line is the verbatim line bytes (a slice into the capsule's
	// event buffer, not a copy).
	Line []byte
}

// eventJSON is the wire shape of an event line. Pointer fields
// distinguish absent from zero so required attributes can be enforced.
type eventJSON struct {
	FrameID *uint64 `json:"frame_id"`
	T       *string `json:"t"`
	Kind    *string `json:"kind"`
	Reason  string  `json:"reason"`
}

// EventScanner splits events.jsonl on literal LF bytes and parses each
// line as a JSON object. It is a restartable pull iterator: Next
// returns events in file order, and Reset rewinds to the beginning.
//
// Invariants maintained: line ranges are pairwise disjoint and
// monotonically increasing, and concatenating the line slices with
// single LFs reproduces the input exactly. A trailing empty line (file
// ending in LF) is permitted and ignored.
type EventScanner struct {
	file string
	data []byte

	pos       int64
	lastFrame uint64
	seenAny   bool
}

// Scanner returns an event scanner over the capsule's raw event bytes.
func (c *Capsule) Scanner() *EventScanner {
	return &EventScanner{file: EventsFile, data: c.Events}
}

// NewEventScanner scans an arbitrary byte buffer. The file name only
// labels error messages.
func NewEventScanner(file string, data []byte) *EventScanner {
	return &EventScanner{file: file, data: data}
}

// Reset rewinds the scanner to the start of the file.
func (s *EventScanner) Reset() {
	s.pos = 0
	s.lastFrame = 0
	s.seenAny = false
}

// Next returns the next event, or (nil, nil) at the end of the file.
//
// Each line must be a complete JSON object with frame_id, t, and kind;
// trailing bytes after the JSON value are rejected. frame_id must be
// non-decreasing across the file — the narrative may attach several
// events to one frame, but never travel backwards.
func (s *EventScanner) Next() (*Event, error) {
	for s.pos < int64(len(s.data)) {
		lineStart := s.pos
		rel := bytes.IndexByte(s.data[s.pos:], '\n')

		var lineEnd int64
		if rel < 0 {
			// Final line without a terminating LF.
			lineEnd = int64(len(s.data))
			s.pos = lineEnd
		} else {
			lineEnd = s.pos + int64(rel)
			s.pos = lineEnd + 1
		}

		line := s.data[lineStart:lineEnd]
		if len(line) == 0 {
			// A trailing LF never reaches here (the loop condition
			// consumes it), so any empty line is a real blank line in
			// the narrative.
			return nil, fault.At(fault.InvalidInput, s.file, lineStart, "empty event line")
		}

		event, err := s.parseLine(line, lineStart, lineEnd)
		if err != nil {
			return nil, err
		}
		return event, nil
	}
	return nil, nil
}

func (s *EventScanner) parseLine(line []byte, start, end int64) (*Event, error) {
	var raw eventJSON
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fault.At(fault.InvalidInput, s.file, start, "parsing event line: %v", err)
	}
	if raw.FrameID == nil {
		return nil, fault.At(fault.InvalidInput, s.file, start, "event is missing frame_id")
	}
	if raw.T == nil {
		return nil, fault.At(fault.InvalidInput, s.file, start, "event is missing t")
	}
	if raw.Kind == nil {
		return nil, fault.At(fault.InvalidInput, s.file, start, "event is missing kind")
	}

	if s.seenAny && *raw.FrameID < s.lastFrame {
		return nil, fault.At(fault.OutOfOrder, s.file, start,
			"event frame_id %d after frame_id %d", *raw.FrameID, s.lastFrame)
	}
	s.lastFrame = *raw.FrameID
	s.seenAny = true

	event := &Event{
		FrameID:   *raw.FrameID,
		T:         *raw.T,
		Reason:    raw.Reason,
		ByteStart: start,
		ByteEnd:   end,
		Line:      line,
	}
	switch *raw.Kind {
	case string(KindObservation):
		event.Kind = KindObservation
	case string(KindSafetyTrigger):
		event.Kind = KindSafetyTrigger
	default:
		event.Kind = KindOther
		event.RawKind = *raw.Kind
	}
	return event, nil
}

// All drains the scanner from the start and returns every event. This
// is the eager form used by the judge and the graph builder, which
// need multiple passes anyway.
func (s *EventScanner) All() ([]*Event, error) {
	s.Reset()
	var events []*Event
	for {
		event, err := s.Next()
		if err != nil {
			return nil, err
		}
		if event == nil {
			return events, nil
		}
		events = append(events, event)
	}
}
