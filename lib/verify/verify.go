// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify re-validates a shard from disk bytes: the inverse of
// compilation.
//
// Verification never trusts the compiler that produced the shard. The
// Merkle root is recomputed over the same file set with the same
// fold, the signature is checked against the trust store, and — when
// the capsule is available — the binary streams are re-scanned and
// every span row compared byte-exact against events.jsonl. A shard
// passes only with zero findings; there are no warnings.
package verify

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/graph"
	"github.com/axm-foundation/axm/lib/judge"
	"github.com/axm-foundation/axm/lib/merkle"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/trust"
	"github.com/axm-foundation/axm/lib/wire"
)

// Options configures a verification pass.
type Options struct {
	// TrustStorePath overrides the trust store consulted for the
	// publisher key. Empty uses the shard's own governance document —
	// fine for integrity checks, but an external store is what makes
	// the trust decision meaningful.
	TrustStorePath string

	// CapsuleDir, when set, enables the deep pass: capsule rehash,
	// binary re-scan, judge re-run, and span byte comparison.
	CapsuleDir string

	// Config supplies the scan bounds for the deep pass.
	Config config.Config

	Logger *slog.Logger
}

// Report summarizes a passed verification. A failed verification
// returns an error, never a Report.
type Report struct {
	Manifest shard.Manifest

	// Checks lists the passes that ran, in order.
	Checks []string

	// SpanRows and StreamRows count the evidence rows re-validated
	// during the deep pass (zero without a capsule).
	SpanRows   int
	StreamRows int
}

// Run verifies the shard at shardDir.
func Run(shardDir string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := &Report{}

	manifestPath := filepath.Join(shardDir, shard.ManifestFile)
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fault.Wrap(fault.ManifestInvalid, manifestPath, err, "reading manifest")
	}
	manifest, err := shard.ParseManifest(manifestBytes)
	if err != nil {
		return nil, err
	}
	if manifest.Spec != shard.SpecVersion {
		return nil, fault.New(fault.ManifestInvalid, shard.ManifestFile,
			"manifest spec %q, this verifier handles %q", manifest.Spec, shard.SpecVersion)
	}
	report.Manifest = manifest
	report.Checks = append(report.Checks, "manifest")

	publicKey, err := readExact(shardDir, shard.PublisherFile, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	if hex.EncodeToString(publicKey) != strings.ToLower(manifest.Publisher) {
		return nil, fault.New(fault.ManifestInvalid, shard.PublisherFile,
			"publisher.pub does not match the manifest's publisher key")
	}

	storePath := opts.TrustStorePath
	if storePath == "" {
		storePath = filepath.Join(shardDir, filepath.FromSlash(shard.TrustStoreFile))
	}
	store, err := trust.LoadStore(storePath)
	if err != nil {
		return nil, fault.Wrap(fault.IoError, storePath, err, "loading trust store")
	}
	if !store.Allows(manifest.Publisher) {
		return nil, fault.New(fault.UntrustedPublisher, storePath,
			"publisher %s is not in trust_store.allowed_keys", manifest.Publisher)
	}
	report.Checks = append(report.Checks, "trust")

	signature, err := readExact(shardDir, shard.SignatureFile, ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), manifestBytes, signature) {
		return nil, fault.New(fault.SignatureInvalid, shard.SignatureFile,
			"manifest.sig does not verify over manifest.json bytes")
	}
	report.Checks = append(report.Checks, "signature")

	root, err := merkle.TreeRoot(shardDir)
	if err != nil {
		return nil, fault.Wrap(fault.IoError, shardDir, err, "recomputing merkle root")
	}
	if merkle.Format(root) != manifest.MerkleRoot {
		return nil, fault.New(fault.MerkleMismatch, shardDir,
			"recomputed merkle root %s, manifest says %s", merkle.Format(root), manifest.MerkleRoot)
	}
	report.Checks = append(report.Checks, "merkle")

	if opts.CapsuleDir != "" {
		if err := deepPass(shardDir, manifest, opts, report, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("shard verified", "dir", shardDir, "checks", report.Checks,
		"span_rows", report.SpanRows, "stream_rows", report.StreamRows)
	return report, nil
}

// deepPass re-derives the evidence from the capsule and compares it
// with what the shard stores.
func deepPass(shardDir string, manifest shard.Manifest, opts Options, report *Report, logger *slog.Logger) error {
	c, err := capsule.Open(opts.CapsuleDir)
	if err != nil {
		return err
	}
	if c.SourceHash != manifest.CapsuleHash {
		return fault.New(fault.ManifestInvalid, capsule.EventsFile,
			"capsule hash %s does not match manifest capsule_hash %s", c.SourceHash, manifest.CapsuleHash)
	}
	report.Checks = append(report.Checks, "capsule_hash")

	events, err := c.Scanner().All()
	if err != nil {
		return err
	}

	scanCfg := wire.ScanConfig(opts.Config.Scan, c.Meta.LatentPayloadLen)
	latentsPath, _ := c.LatentsPath()
	latents, err := wire.Scan(latentsPath, wire.StreamLatents, scanCfg)
	if err != nil {
		return err
	}
	// Mirror the compiler: a safe run's residual file is judged by
	// its size, not scanned.
	hasTriggers := false
	for _, event := range events {
		if event.Kind == capsule.KindSafetyTrigger {
			hasTriggers = true
			break
		}
	}
	residuals := &wire.Result{}
	if hasTriggers {
		residualsPath, _ := c.ResidualsPath()
		residuals, err = wire.Scan(residualsPath, wire.StreamResiduals, scanCfg)
		if err != nil {
			return err
		}
	}
	residualSize, err := c.ResidualsSize()
	if err != nil {
		return err
	}

	policy, err := trust.LoadPolicy(filepath.Join(shardDir, filepath.FromSlash(shard.PolicyFile)))
	if err != nil {
		return fault.Wrap(fault.IoError, shard.PolicyFile, err, "loading local policy")
	}

	judgment, err := judge.Run(events, latents, residuals, residualSize, judge.Options{
		PreWindow:     c.Meta.PreWindow,
		PostWindow:    c.Meta.PostWindow,
		StrictWindows: policy.StrictResidualWindows,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	report.Checks = append(report.Checks, "judge")

	storedStreams, err := shard.ReadTable[graph.StreamRow](
		filepath.Join(shardDir, filepath.FromSlash(shard.StreamsFile)))
	if err != nil {
		return err
	}
	expectedStreams := graph.StreamRows(judgment.Streams)
	if len(storedStreams) != len(expectedStreams) {
		return fault.New(fault.InvalidInput, shard.StreamsFile,
			"shard stores %d stream rows, rescan found %d", len(storedStreams), len(expectedStreams))
	}
	for i := range expectedStreams {
		if storedStreams[i] != expectedStreams[i] {
			return fault.New(fault.InvalidInput, shard.StreamsFile,
				"stream row %d differs from rescan: stored %+v, rescanned %+v",
				i, storedStreams[i], expectedStreams[i])
		}
	}
	report.StreamRows = len(storedStreams)
	report.Checks = append(report.Checks, "streams")

	spans, err := shard.ReadTable[graph.SpanRow](
		filepath.Join(shardDir, filepath.FromSlash(shard.SpansFile)))
	if err != nil {
		return err
	}
	for _, span := range spans {
		if span.SourceHash != manifest.CapsuleHash {
			return fault.New(fault.InvalidInput, shard.SpansFile,
				"span %s references source %s, capsule is %s", span.SpanID, span.SourceHash, manifest.CapsuleHash)
		}
		slice, err := c.Slice(span.ByteStart, span.ByteEnd)
		if err != nil {
			return fault.New(fault.InvalidInput, shard.SpansFile,
				"span %s range is out of bounds: %v", span.SpanID, err)
		}
		if !bytes.Equal(slice, []byte(span.Text)) {
			return fault.At(fault.InvalidInput, capsule.EventsFile, span.ByteStart,
				"span %s text differs from capsule bytes", span.SpanID)
		}
	}
	report.SpanRows = len(spans)
	report.Checks = append(report.Checks, "spans")
	return nil
}

func readExact(shardDir, rel string, want int) ([]byte, error) {
	path := filepath.Join(shardDir, filepath.FromSlash(rel))
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.IoError, rel, err, "reading shard file")
	}
	if len(content) != want {
		return nil, fault.New(fault.SignatureInvalid, rel, "%s is %d bytes, want %d raw", rel, len(content), want)
	}
	return content, nil
}
