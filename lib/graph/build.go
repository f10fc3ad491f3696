// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"sort"
	"strconv"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/ident"
)

// Namespace and type vocabulary for compiler-minted rows.
const (
	frameNamespace = "frame"
	frameType      = "frame"

	objectTypeLiteralString = "literal:string"

	tierSafety   = 1
	tierObserved = 2
)

// Build is the graph extracted from one capsule's narrative: four of
// the five shard tables (streams come from the judge). Each table is
// sorted lexicographically by its primary ID.
type Build struct {
	Entities   []EntityRow
	Claims     []ClaimRow
	Spans      []SpanRow
	Provenance []ProvenanceRow
}

// FromEvents extracts rows from the event sequence. Every event gets
// a frame entity and a span for its line; observations and safety
// triggers additionally encode claims — observed at tier 2, triggered
// (plus the optional trigger reason) at tier 1.
func FromEvents(events []*capsule.Event, sourceHash string) (*Build, error) {
	b := &builder{
		sourceHash:     sourceHash,
		seenEntities:   map[string]bool{},
		seenSpans:      map[string]bool{},
		seenClaims:     map[string]bool{},
		seenProvenance: map[string]bool{},
	}

	for _, event := range events {
		frameEntity, err := b.addFrameEntity(event.FrameID)
		if err != nil {
			return nil, err
		}
		span := b.addSpan(event)

		switch event.Kind {
		case capsule.KindObservation:
			if err := b.addClaim(frameEntity, "observed", "latent", tierObserved, span); err != nil {
				return nil, err
			}
		case capsule.KindSafetyTrigger:
			if err := b.addClaim(frameEntity, "triggered", "tier1", tierSafety, span); err != nil {
				return nil, err
			}
			if event.Reason != "" {
				if err := b.addClaim(frameEntity, "trigger_reason", event.Reason, tierSafety, span); err != nil {
					return nil, err
				}
			}
		}
	}

	sort.Slice(b.entities, func(i, j int) bool { return b.entities[i].EntityID < b.entities[j].EntityID })
	sort.Slice(b.claims, func(i, j int) bool { return b.claims[i].ClaimID < b.claims[j].ClaimID })
	sort.Slice(b.spans, func(i, j int) bool { return b.spans[i].SpanID < b.spans[j].SpanID })
	sort.Slice(b.provenance, func(i, j int) bool { return b.provenance[i].ProvenanceID < b.provenance[j].ProvenanceID })

	return &Build{
		Entities:   b.entities,
		Claims:     b.claims,
		Spans:      b.spans,
		Provenance: b.provenance,
	}, nil
}

type builder struct {
	sourceHash string

	entities   []EntityRow
	claims     []ClaimRow
	spans      []SpanRow
	provenance []ProvenanceRow

	seenEntities   map[string]bool
	seenSpans      map[string]bool
	seenClaims     map[string]bool
	seenProvenance map[string]bool
}

func (b *builder) addFrameEntity(frameID uint64) (string, error) {
	label := strconv.FormatUint(frameID, 10)
	entityID, err := ident.EntityID(frameNamespace, label)
	if err != nil {
		return "", err
	}
	if !b.seenEntities[entityID] {
		b.seenEntities[entityID] = true
		b.entities = append(b.entities, EntityRow{
			EntityID:  entityID,
			Namespace: frameNamespace,
			Label:     label,
			Type:      frameType,
		})
	}
	return entityID, nil
}

func (b *builder) addSpan(event *capsule.Event) SpanRow {
	span := SpanRow{
		SpanID:     ident.SpanID(b.sourceHash, event.ByteStart, event.ByteEnd),
		SourceHash: b.sourceHash,
		ByteStart:  event.ByteStart,
		ByteEnd:    event.ByteEnd,
		Text:       string(event.Line),
	}
	if !b.seenSpans[span.SpanID] {
		b.seenSpans[span.SpanID] = true
		b.spans = append(b.spans, span)
	}
	return span
}

func (b *builder) addClaim(subject, predicate, object string, tier int32, span SpanRow) error {
	claimID, err := ident.ClaimID(subject, predicate, object, objectTypeLiteralString)
	if err != nil {
		return err
	}
	if !b.seenClaims[claimID] {
		b.seenClaims[claimID] = true
		b.claims = append(b.claims, ClaimRow{
			ClaimID:    claimID,
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			ObjectType: objectTypeLiteralString,
			Tier:       tier,
		})
	}
	provenanceID := ident.ProvenanceID(claimID, span.SpanID)
	if !b.seenProvenance[provenanceID] {
		b.seenProvenance[provenanceID] = true
		b.provenance = append(b.provenance, ProvenanceRow{
			ProvenanceID: provenanceID,
			ClaimID:      claimID,
			SpanID:       span.SpanID,
			SourceHash:   b.sourceHash,
			ByteStart:    span.ByteStart,
			ByteEnd:      span.ByteEnd,
		})
	}
	return nil
}
