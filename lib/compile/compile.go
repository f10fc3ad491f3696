// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package compile runs the full evidence pipeline: open a capsule,
// discover its binary records, judge the narrative against disk,
// build the graph, and emit a signed shard.
//
// Compilation is a deterministic fold over the inputs — the same
// capsule, configuration, signer, and clock always produce the same
// shard bytes. There is no shared state between stages except the
// read-only capsule; the output directory is owned exclusively until
// the signature file commits it, and is removed on any failure.
package compile

import (
	"context"
	"log/slog"
	"os"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/clock"
	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/graph"
	"github.com/axm-foundation/axm/lib/judge"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/trust"
	"github.com/axm-foundation/axm/lib/wire"
)

// Options carries the explicit context every stage needs. No stage
// reaches for globals: the clock, configuration, and keys all arrive
// here.
type Options struct {
	Config config.Config
	Signer *shard.Signer

	// TrustStore is written into the shard's governance directory.
	// Empty means "trust the publisher": a store holding exactly the
	// signing key.
	TrustStore trust.Store

	// Policy is the local policy written into the shard and applied
	// during judgment.
	Policy trust.Policy

	// Clock stamps the manifest. Nil means wall clock; replay and
	// tests inject a fixed one.
	Clock clock.Clock

	Logger *slog.Logger
}

// Run compiles the capsule at capsuleDir into a shard at shardDir.
// shardDir must not already contain files. On failure the partially
// written shard is removed; the absence of sig/manifest.sig marks any
// interrupted shard as incomplete.
func Run(ctx context.Context, capsuleDir, shardDir string, opts Options) (shard.Manifest, error) {
	if opts.Signer == nil {
		return shard.Manifest{}, fault.New(fault.InvalidInput, shardDir, "no signing key configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	trustStore := opts.TrustStore
	if len(trustStore.AllowedKeys) == 0 {
		trustStore = trust.NewStore(opts.Signer.PublicHex())
	}

	if entries, err := os.ReadDir(shardDir); err == nil && len(entries) > 0 {
		return shard.Manifest{}, fault.New(fault.IoError, shardDir, "output directory is not empty")
	}

	manifest, err := run(ctx, capsuleDir, shardDir, opts, clk, trustStore, logger)
	if err != nil {
		// No partial shards: the signature file is the commit point
		// and it is only written on full success.
		os.RemoveAll(shardDir)
		return shard.Manifest{}, err
	}
	return manifest, nil
}

func run(ctx context.Context, capsuleDir, shardDir string, opts Options, clk clock.Clock, trustStore trust.Store, logger *slog.Logger) (shard.Manifest, error) {
	c, err := capsule.Open(capsuleDir)
	if err != nil {
		return shard.Manifest{}, err
	}
	logger.Info("capsule opened",
		"dir", capsuleDir,
		"robot", c.Meta.RobotID,
		"session", c.Meta.SessionID,
		"event_bytes", len(c.Events))

	events, err := c.Scanner().All()
	if err != nil {
		return shard.Manifest{}, err
	}

	scanCfg := wire.ScanConfig(opts.Config.Scan, c.Meta.LatentPayloadLen)
	if _, hasLatents := c.LatentsPath(); hasLatents && scanCfg.LatentPayloadLen == 0 {
		return shard.Manifest{}, fault.New(fault.InvalidInput, capsule.MetaFile,
			"capsule has a latent stream but meta.json declares no latent_payload_len")
	}

	latentsPath, _ := c.LatentsPath()
	latents, err := wire.Scan(latentsPath, wire.StreamLatents, scanCfg)
	if err != nil {
		return shard.Manifest{}, err
	}
	logger.Info("latent scan", "rows", len(latents.Rows), "resyncs", latents.Stats.Resyncs,
		"skipped_bytes", latents.Stats.SkippedBytes)

	// In a safe run the residual channel must never have opened, so
	// there is nothing to scan: the judge fails on the file's size
	// alone. Scanning anyway could surface a framing fault before the
	// real finding.
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
			return shard.Manifest{}, err
		}
		logger.Info("residual scan", "rows", len(residuals.Rows), "resyncs", residuals.Stats.Resyncs,
			"skipped_bytes", residuals.Stats.SkippedBytes)
	}

	residualSize, err := c.ResidualsSize()
	if err != nil {
		return shard.Manifest{}, err
	}

	judgment, err := judge.Run(events, latents, residuals, residualSize, judge.Options{
		PreWindow:     c.Meta.PreWindow,
		PostWindow:    c.Meta.PostWindow,
		StrictWindows: opts.Policy.StrictResidualWindows,
		Logger:        logger,
	})
	if err != nil {
		return shard.Manifest{}, err
	}

	build, err := graph.FromEvents(events, c.SourceHash)
	if err != nil {
		return shard.Manifest{}, err
	}

	if err := ctx.Err(); err != nil {
		return shard.Manifest{}, fault.Wrap(fault.IoError, shardDir, err, "compilation aborted")
	}

	return shard.Write(ctx, shardDir, shard.Input{
		Build:   build,
		Streams: graph.StreamRows(judgment.Streams),
		Info: shard.CapsuleInfo{
			RobotID:    c.Meta.RobotID,
			SessionID:  c.Meta.SessionID,
			StartedAt:  c.Meta.StartedAt,
			EndedAt:    c.Meta.EndedAt,
			Events:     len(events),
			Entities:   len(build.Entities),
			Claims:     len(build.Claims),
			Spans:      len(build.Spans),
			Provenance: len(build.Provenance),
			Streams:    len(judgment.Streams),
		},
		CapsuleHash:  c.SourceHash,
		TrustStore:   trustStore,
		Policy:       opts.Policy,
		Signer:       opts.Signer,
		Clock:        clk,
		RowGroupSize: opts.Config.Writer.RowGroupSize,
		Logger:       logger,
	})
}
