// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the machine-readable error kinds surfaced by
// the evidence compiler and verifier.
//
// Every failure in the pipeline is fatal to the run in progress and is
// reported as exactly one Error carrying a Kind, the offending file,
// and (where meaningful) a byte offset. Resync is not a fault — it is
// a recorded status on affected stream rows.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a failure. Kinds are
// stable: CLI exit codes and downstream tooling key off these strings.
type Kind string

const (
	InvalidInput            Kind = "invalid_input"
	MissingMeta             Kind = "missing_meta"
	MissingEvents           Kind = "missing_events"
	UnsupportedEncoding     Kind = "unsupported_encoding"
	Truncated               Kind = "truncated"
	BadMagic                Kind = "bad_magic"
	CrcMismatch             Kind = "crc_mismatch"
	OutOfOrder              Kind = "out_of_order"
	OversizeRecord          Kind = "oversize_record"
	ResyncLimit             Kind = "resync_limit"
	LatentMissing           Kind = "latent_missing"
	UnexpectedResidual      Kind = "unexpected_residual"
	ManifestInvalid         Kind = "manifest_invalid"
	SignatureInvalid        Kind = "signature_invalid"
	MerkleMismatch          Kind = "merkle_mismatch"
	UntrustedPublisher      Kind = "untrusted_publisher"
	NonDeterministicLibrary Kind = "non_deterministic_library"
	IoError                 Kind = "io_error"
)

// ExitCode returns the stable process exit code for the kind. Codes
// start at 10 so they never collide with shell conventions (1 for
// generic failure, 2 for usage errors).
func (k Kind) ExitCode() int {
	codes := map[Kind]int{
		InvalidInput:            10,
		MissingMeta:             11,
		MissingEvents:           12,
		UnsupportedEncoding:     13,
		Truncated:               14,
		BadMagic:                15,
		CrcMismatch:             16,
		OutOfOrder:              17,
		OversizeRecord:          18,
		ResyncLimit:             19,
		LatentMissing:           20,
		UnexpectedResidual:      21,
		ManifestInvalid:         22,
		SignatureInvalid:        23,
		MerkleMismatch:          24,
		UntrustedPublisher:      25,
		NonDeterministicLibrary: 26,
		IoError:                 27,
	}
	if code, ok := codes[k]; ok {
		return code
	}
	return 1
}

// Error is a classified pipeline failure. File and Offset identify
// where on disk the problem was observed; Offset is -1 when no byte
// position applies (e.g. a missing file).
type Error struct {
	Kind   Kind
	File   string
	Offset int64
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	location := e.File
	if e.Offset >= 0 {
		location = fmt.Sprintf("%s@%d", e.File, e.Offset)
	}
	switch {
	case location != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, location, e.Msg, e.Err)
	case location != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, location, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with no byte position.
func New(kind Kind, file, format string, args ...any) *Error {
	return &Error{Kind: kind, File: file, Offset: -1, Msg: fmt.Sprintf(format, args...)}
}

// At constructs an Error anchored to a byte offset in file.
func At(kind Kind, file string, offset int64, format string, args ...any) *Error {
	return &Error{Kind: kind, File: file, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error around an underlying cause.
func Wrap(kind Kind, file string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, File: file, Offset: -1, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed. Returns
// IoError for errors that did not originate in this package, since
// unclassified failures in a pipeline dominated by file I/O are
// overwhelmingly I/O.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return IoError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
