// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph builds the shard's row-sets: entities, claims, spans,
// provenance, and streams.
//
// The struct tags here are the columnar schemas — the parquet files a
// shard carries are these structs, written in the fixed field order
// below. Changing a tag or a field type changes every shard's bytes.
package graph

import (
	"github.com/axm-foundation/axm/lib/wire"
)

// EntityRow names a thing claims can be about. Frames are the only
// entities the evidence pipeline mints on its own.
type EntityRow struct {
	EntityID  string `parquet:"entity_id" json:"entity_id"`
	Namespace string `parquet:"namespace" json:"namespace"`
	Label     string `parquet:"label" json:"label"`
	Type      string `parquet:"type" json:"type"`
}

// ClaimRow is one structured fact extracted from the narrative.
// Tier records epistemic strength: 0 formal, 1 safety, 2 observed,
// 3 statistical, 4 hypothesis.
type ClaimRow struct {
	ClaimID    string `parquet:"claim_id" json:"claim_id"`
	Subject    string `parquet:"subject" json:"subject"`
	Predicate  string `parquet:"predicate" json:"predicate"`
	Object     string `parquet:"object" json:"object"`
	ObjectType string `parquet:"object_type" json:"object_type"`
	Tier       int32  `parquet:"tier" json:"tier"`
}

// SpanRow anchors claims to bytes. Text is the verbatim slice
// events.jsonl[byte_start:byte_end] — never reserialized, so the
// verifier can compare it byte-exact against the capsule.
type SpanRow struct {
	SpanID     string `parquet:"span_id" json:"span_id"`
	SourceHash string `parquet:"source_hash" json:"source_hash"`
	ByteStart  int64  `parquet:"byte_start" json:"byte_start"`
	ByteEnd    int64  `parquet:"byte_end" json:"byte_end"`
	Text       string `parquet:"text" json:"text"`
}

// ProvenanceRow links a claim to the span it was read from.
type ProvenanceRow struct {
	ProvenanceID string `parquet:"provenance_id" json:"provenance_id"`
	ClaimID      string `parquet:"claim_id" json:"claim_id"`
	SpanID       string `parquet:"span_id" json:"span_id"`
	SourceHash   string `parquet:"source_hash" json:"source_hash"`
	ByteStart    int64  `parquet:"byte_start" json:"byte_start"`
	ByteEnd      int64  `parquet:"byte_end" json:"byte_end"`
}

// StreamRow is one discovered (or synthesized) binary stream record.
type StreamRow struct {
	FrameID     int64  `parquet:"frame_id" json:"frame_id"`
	Stream      string `parquet:"stream" json:"stream"`
	File        string `parquet:"file" json:"file"`
	Offset      int64  `parquet:"offset" json:"offset"`
	Length      int64  `parquet:"length" json:"length"`
	Status      string `parquet:"status" json:"status"`
	ContentHash string `parquet:"content_hash" json:"content_hash"`
}

// StreamRows converts scanner rows to their columnar form.
func StreamRows(rows []wire.Row) []StreamRow {
	out := make([]StreamRow, len(rows))
	for i, row := range rows {
		out[i] = StreamRow{
			FrameID:     int64(row.FrameID),
			Stream:      string(row.Stream),
			File:        row.File,
			Offset:      row.Offset,
			Length:      row.Length,
			Status:      string(row.Status),
			ContentHash: row.ContentHash,
		}
	}
	return out
}
