// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/axm-foundation/axm/lib/clock"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/graph"
	"github.com/axm-foundation/axm/lib/merkle"
	"github.com/axm-foundation/axm/lib/trust"
)

// writerName and writerVersion pin the created_by metadata every
// parquet file carries. They are fixed strings: nothing checks them
// against the parquet-go version in use, so a library upgrade that
// changes the encoded bytes leaves them unchanged.
const (
	writerName    = "axm-shard-writer"
	writerVersion = "1.0.0"
	writerBuild   = "pinned"
)

// CapsuleInfo is the content/capsule.json document: a human-oriented
// summary of what was compiled. It participates in the Merkle tree
// like every other content file.
type CapsuleInfo struct {
	RobotID    string `json:"robot_id"`
	SessionID  string `json:"session_id"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
	Events     int    `json:"events"`
	Entities   int    `json:"entities"`
	Claims     int    `json:"claims"`
	Spans      int    `json:"spans"`
	Provenance int    `json:"provenance"`
	Streams    int    `json:"streams"`
}

// Input carries everything the writer lays down.
type Input struct {
	Build   *graph.Build
	Streams []graph.StreamRow
	Info    CapsuleInfo

	// CapsuleHash is the hex SHA256 of the capsule's events.jsonl.
	CapsuleHash string

	TrustStore trust.Store
	Policy     trust.Policy
	Signer     *Signer

	Clock        clock.Clock
	RowGroupSize int64
	Logger       *slog.Logger
}

// Write lays out the shard at outDir and returns the signed manifest.
// Directory entries are created in a fixed order; sig/manifest.sig is
// written last. The caller owns outDir exclusively until Write
// returns and is responsible for discarding it on error.
func Write(ctx context.Context, outDir string, in Input) (Manifest, error) {
	logger := in.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for _, dir := range []string{"content", "graph", "evidence", "governance", "sig"} {
		if err := os.MkdirAll(filepath.Join(outDir, dir), 0o755); err != nil {
			return Manifest{}, fault.Wrap(fault.IoError, outDir, err, "creating shard directory %s", dir)
		}
	}

	info, err := json.Marshal(in.Info)
	if err != nil {
		return Manifest{}, fault.Wrap(fault.IoError, CapsuleInfoFile, err, "encoding capsule summary")
	}
	if err := writeFile(outDir, CapsuleInfoFile, info); err != nil {
		return Manifest{}, err
	}

	if err := ctx.Err(); err != nil {
		return Manifest{}, fault.Wrap(fault.IoError, outDir, err, "compilation aborted")
	}

	if err := writeTable(outDir, EntitiesFile, in.Build.Entities, in.RowGroupSize); err != nil {
		return Manifest{}, err
	}
	if err := writeTable(outDir, ClaimsFile, in.Build.Claims, in.RowGroupSize); err != nil {
		return Manifest{}, err
	}
	if err := writeTable(outDir, ProvenanceFile, in.Build.Provenance, in.RowGroupSize); err != nil {
		return Manifest{}, err
	}
	if err := writeTable(outDir, SpansFile, in.Build.Spans, in.RowGroupSize); err != nil {
		return Manifest{}, err
	}
	if err := writeTable(outDir, StreamsFile, in.Streams, in.RowGroupSize); err != nil {
		return Manifest{}, err
	}

	if err := writeFile(outDir, TrustStoreFile, in.TrustStore.Encode()); err != nil {
		return Manifest{}, err
	}
	if err := writeFile(outDir, PolicyFile, in.Policy.Encode()); err != nil {
		return Manifest{}, err
	}

	if err := ctx.Err(); err != nil {
		return Manifest{}, fault.Wrap(fault.IoError, outDir, err, "compilation aborted")
	}

	root, err := merkle.TreeRoot(outDir)
	if err != nil {
		return Manifest{}, fault.Wrap(fault.IoError, outDir, err, "computing merkle root")
	}

	manifest := Manifest{
		CapsuleHash: in.CapsuleHash,
		Created:     in.Clock.Now().UTC().Format(time.RFC3339),
		MerkleRoot:  merkle.Format(root),
		Publisher:   in.Signer.PublicHex(),
		Spec:        SpecVersion,
	}
	manifestBytes := manifest.Encode()
	if err := writeFile(outDir, ManifestFile, manifestBytes); err != nil {
		return Manifest{}, err
	}

	if err := writeFile(outDir, PublisherFile, in.Signer.Public()); err != nil {
		return Manifest{}, err
	}

	// The signature commits the shard. Nothing may be written after.
	if err := writeFile(outDir, SignatureFile, in.Signer.Sign(manifestBytes)); err != nil {
		return Manifest{}, err
	}

	logger.Info("shard written",
		"dir", outDir,
		"merkle_root", manifest.MerkleRoot,
		"entities", len(in.Build.Entities),
		"claims", len(in.Build.Claims),
		"spans", len(in.Build.Spans),
		"streams", len(in.Streams))
	return manifest, nil
}

// writeTable encodes rows as a parquet table with pinned options and
// writes it at rel under outDir.
//
// Columnar libraries are a reproducibility hazard: any internal
// nondeterminism (map iteration in metadata, timestamps, unstable
// dictionary ordering) silently breaks the bit-identical-shard
// guarantee. The table is therefore encoded twice and the encodings
// compared; a mismatch aborts with NonDeterministicLibrary rather
// than publishing an unreproducible shard.
func writeTable[Row any](outDir, rel string, rows []Row, rowGroupSize int64) error {
	first, err := encodeTable(rows, rowGroupSize)
	if err != nil {
		return fault.Wrap(fault.IoError, rel, err, "encoding table")
	}
	second, err := encodeTable(rows, rowGroupSize)
	if err != nil {
		return fault.Wrap(fault.IoError, rel, err, "encoding table")
	}
	if !bytes.Equal(first, second) {
		return fault.New(fault.NonDeterministicLibrary, rel,
			"parquet writer produced %d then %d bytes for identical rows", len(first), len(second))
	}
	return writeFile(outDir, rel, first)
}

func encodeTable[Row any](rows []Row, rowGroupSize int64) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[Row](&buf,
		parquet.Compression(&parquet.Zstd),
		parquet.MaxRowsPerRowGroup(rowGroupSize),
		parquet.CreatedBy(writerName, writerVersion, writerBuild),
	)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTable reads a parquet table back. The verifier uses this to
// re-check every row a shard carries.
func ReadTable[Row any](path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fault.Wrap(fault.IoError, path, err, "reading table")
	}
	return rows, nil
}

func writeFile(outDir, rel string, content []byte) error {
	path := filepath.Join(outDir, filepath.FromSlash(rel))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fault.Wrap(fault.IoError, rel, err, "writing shard file")
	}
	return nil
}
