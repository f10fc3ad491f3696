// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package judge cross-validates the narrative event log against the
// records discovered on disk.
//
// Disk is truth: the event log's claimed offsets and counts are never
// trusted, the join runs on frame_id against what the scanner actually
// found. The judge enforces the three evidence invariants — latent
// coverage, residual window bounds, and safe-run zero-residuals — and
// produces the streams row-set for the shard.
package judge

import (
	"log/slog"
	"sort"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/wire"
)

// Options configures a judgment pass.
type Options struct {
	// PreWindow and PostWindow bound residual recording around each
	// safety trigger, in frames. Declared per capsule in meta.json.
	PreWindow  uint64
	PostWindow uint64

	// StrictWindows elevates residual gaps inside a trigger window
	// from reported to fatal. Set from governance local policy.
	StrictWindows bool

	Logger *slog.Logger
}

// Judgment is the accepted evidence: the streams row-set, sorted by
// (frame_id, stream) with latents before residuals.
type Judgment struct {
	Streams []wire.Row

	// TriggerFrames are the safety trigger frame ids in event order.
	TriggerFrames []uint64

	// ResidualGaps counts window frames with no residual record.
	ResidualGaps int
}

// Run joins events against the two scan results and asserts every
// evidence invariant. residualFileSize is the on-disk size of
// cam_residuals.bin (0 when absent): the safe-run invariant is about
// bytes present, not records parsed — a residual file full of garbage
// in a safe run is just as damning as a valid one.
func Run(events []*capsule.Event, latents, residuals *wire.Result, residualFileSize int64, opts Options) (*Judgment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	latentByFrame := make(map[uint64]wire.Row, len(latents.Rows))
	for _, row := range latents.Rows {
		latentByFrame[row.FrameID] = row
	}

	var triggers []uint64
	maxFrame := uint64(0)
	for _, event := range events {
		if event.FrameID > maxFrame {
			maxFrame = event.FrameID
		}
		switch event.Kind {
		case capsule.KindObservation:
			row, found := latentByFrame[event.FrameID]
			if !found || row.Status == wire.StatusMissing {
				return nil, fault.At(fault.LatentMissing, capsule.EventsFile, event.ByteStart,
					"observation at frame %d has no latent record on disk", event.FrameID)
			}
		case capsule.KindSafetyTrigger:
			triggers = append(triggers, event.FrameID)
		}
	}

	// Safe-run invariant: no triggers means the residual channel must
	// never have opened.
	if len(triggers) == 0 && residualFileSize > 0 {
		return nil, fault.New(fault.UnexpectedResidual, wire.StreamResiduals.File(),
			"capsule has no safety triggers but %d bytes of residuals", residualFileSize)
	}

	// The union of all trigger windows, clamped to the session's
	// frame range.
	window := make(map[uint64]bool)
	for _, trigger := range triggers {
		start := uint64(0)
		if trigger > opts.PreWindow {
			start = trigger - opts.PreWindow
		}
		end := trigger + opts.PostWindow
		if end > maxFrame {
			end = maxFrame
		}
		for frame := start; frame <= end; frame++ {
			window[frame] = true
		}
	}

	residualByFrame := make(map[uint64]bool, len(residuals.Rows))
	for _, row := range residuals.Rows {
		if !window[row.FrameID] {
			return nil, fault.At(fault.UnexpectedResidual, row.File, row.Offset,
				"residual at frame %d is outside every trigger window", row.FrameID)
		}
		residualByFrame[row.FrameID] = true
	}

	// Window coverage: frames with no record become missing rows.
	streams := make([]wire.Row, 0, len(latents.Rows)+len(residuals.Rows))
	streams = append(streams, latents.Rows...)
	streams = append(streams, residuals.Rows...)

	gaps := 0
	for frame := range window {
		if !residualByFrame[frame] {
			gaps++
			streams = append(streams, wire.Row{
				FrameID: frame,
				Stream:  wire.StreamResiduals,
				File:    wire.StreamResiduals.File(),
				Status:  wire.StatusMissing,
			})
		}
	}
	if gaps > 0 {
		logger.Warn("residual window gaps", "frames", gaps, "triggers", len(triggers))
		if opts.StrictWindows {
			return nil, fault.New(fault.ResyncLimit, wire.StreamResiduals.File(),
				"%d window frames lack residual records under strict policy", gaps)
		}
	}

	sort.SliceStable(streams, func(i, j int) bool {
		if streams[i].FrameID != streams[j].FrameID {
			return streams[i].FrameID < streams[j].FrameID
		}
		return streamRank(streams[i].Stream) < streamRank(streams[j].Stream)
	})

	logger.Info("judgment complete",
		"events", len(events),
		"latent_rows", len(latents.Rows),
		"residual_rows", len(residuals.Rows),
		"missing_window_frames", gaps)

	return &Judgment{Streams: streams, TriggerFrames: triggers, ResidualGaps: gaps}, nil
}

func streamRank(s wire.Stream) int {
	if s == wire.StreamLatents {
		return 0
	}
	return 1
}
