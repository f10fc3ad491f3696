// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package ident derives the deterministic identifiers used throughout
// a shard: entity, claim, span, and provenance IDs.
//
// All identity flows through two functions. Canonicalize folds free
// text into a stable byte form so that cosmetically different inputs
// ("Wheel  Slip", "wheel slip") mint the same ID. Mint hashes a
// canonical payload into a short prefixed identifier. The payload
// layouts for each row type are fixed by the helper constructors;
// changing any of them invalidates every existing shard.
package ident

import (
	"crypto/sha256"
	"encoding/base32"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/axm-foundation/axm/lib/fault"
)

// crockford is the Crockford-style BASE32 alphabet: uppercase, no
// padding, ambiguous letters I, L, O, U removed.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// payloadSep joins the fields of an ID payload. Canonicalize leaves it
// in place, so a canonicalized field may itself contain it; a minted
// ID never does.
const payloadSep = "|"

// Canonicalize normalizes text for identity hashing. The order of
// operations is fixed and observable: Unicode NFKC, Unicode full case
// folding, whitespace-run collapse to a single U+0020 with ends
// trimmed, then removal of C0/C1 control characters.
//
// Returns an InvalidInput fault when text is not valid UTF-8.
func Canonicalize(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, fault.New(fault.InvalidInput, "", "text is not valid UTF-8")
	}
	// A Caser is stateful and must not be shared across goroutines,
	// so folding gets a fresh one per call.
	folded := cases.Fold().String(norm.NFKC.String(text))
	collapsed := strings.Join(strings.Fields(folded), " ")
	cleaned := strings.Map(func(r rune) rune {
		if r <= 0x1F || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, collapsed)
	return []byte(cleaned), nil
}

// Mint derives an identifier from a canonical payload: the leading 15
// bytes of SHA-256(payload), BASE32-encoded (24 characters), prefixed.
func Mint(prefix string, payload []byte) string {
	digest := sha256.Sum256(payload)
	return prefix + "_" + crockford.EncodeToString(digest[:15])
}

// EntityID mints the ID for an entity row from its namespace and
// label. Both fields are canonicalized.
func EntityID(namespace, label string) (string, error) {
	ns, err := Canonicalize(namespace)
	if err != nil {
		return "", err
	}
	lbl, err := Canonicalize(label)
	if err != nil {
		return "", err
	}
	return Mint("e", join(string(ns), string(lbl))), nil
}

// ClaimID mints the ID for a claim row. The subject is an
// already-minted entity ID and is used verbatim; the predicate is
// canonicalized. Entity objects are minted IDs used verbatim, literal
// objects are canonicalized.
func ClaimID(subject, predicate, object, objectType string) (string, error) {
	pred, err := Canonicalize(predicate)
	if err != nil {
		return "", err
	}
	obj := object
	if objectType != "entity" {
		canonical, err := Canonicalize(object)
		if err != nil {
			return "", err
		}
		obj = string(canonical)
	}
	return Mint("c", join(subject, string(pred), objectType, obj)), nil
}

// SpanID mints the ID for a span row from the source hash and the byte
// range. The span text does not participate: the range within an
// immutable source already determines it.
func SpanID(sourceHash string, byteStart, byteEnd int64) string {
	return Mint("s", join(sourceHash, strconv.FormatInt(byteStart, 10), strconv.FormatInt(byteEnd, 10)))
}

// ProvenanceID mints the ID for a provenance row linking a claim to a
// span.
func ProvenanceID(claimID, spanID string) string {
	return Mint("p", join(claimID, spanID))
}

func join(fields ...string) []byte {
	return []byte(strings.Join(fields, payloadSep))
}
