// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package sim generates deterministic flight-recorder capsules for
// tests, demos, and fixture pipelines.
//
// The generator reproduces the recorder's behavior faithfully enough
// to exercise every compiler invariant: a contiguous latent stream,
// one observation event per frame, and a residual recorder that keeps
// a pre-trigger ring buffer and flushes it — plus a post window — when
// a safety trigger fires. Safe runs leave cam_residuals.bin present
// but empty, exactly as a recorder that never opened the channel
// would.
//
// All randomness comes from a seeded PRNG and all timestamps from a
// fixed start instant, so a given Options value always produces a
// byte-identical capsule.
package sim

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/axm-foundation/axm/lib/capsule"
	"github.com/axm-foundation/axm/lib/wire"
)

// Options configures a generated capsule.
type Options struct {
	// Frames is the session length.
	Frames int

	// TriggerAt is the frame of the single safety trigger, or -1 for
	// a safe run.
	TriggerAt int

	// TriggerReason is attached to the safety trigger event.
	TriggerReason string

	// PreWindow and PostWindow bound residual recording around the
	// trigger, in frames. Declared in meta.json for the compiler.
	PreWindow  uint64
	PostWindow uint64

	// LatentPayloadLen is the fixed latent payload width in bytes.
	LatentPayloadLen int

	// ResidualPayloadLen is the residual payload width in bytes.
	ResidualPayloadLen int

	// Seed drives the payload PRNG.
	Seed int64

	// FramesPerSecond spaces event timestamps. Zero means 10.
	FramesPerSecond int

	RobotID   string
	SessionID string

	// StartedAt anchors every timestamp in the capsule.
	StartedAt time.Time
}

// withDefaults fills the zero values that have natural defaults.
func (o Options) withDefaults() Options {
	if o.FramesPerSecond == 0 {
		o.FramesPerSecond = 10
	}
	if o.LatentPayloadLen == 0 {
		o.LatentPayloadLen = 256
	}
	if o.ResidualPayloadLen == 0 {
		o.ResidualPayloadLen = 4096
	}
	if o.RobotID == "" {
		o.RobotID = "sim-robot"
	}
	if o.SessionID == "" {
		o.SessionID = fmt.Sprintf("sim-%08x", o.Seed)
	}
	if o.TriggerReason == "" {
		o.TriggerReason = "wheel slip"
	}
	if o.StartedAt.IsZero() {
		o.StartedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return o
}

// Generate writes a capsule at dir.
func Generate(dir string, opts Options) error {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating capsule dir: %w", err)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	frameInterval := time.Second / time.Duration(opts.FramesPerSecond)

	var latents []byte
	var events []byte
	recorder := newResidualRecorder(int(opts.PreWindow))

	for frame := 0; frame < opts.Frames; frame++ {
		now := opts.StartedAt.Add(time.Duration(frame) * frameInterval)
		frameID := uint64(frame)
		timestampNS := uint64(now.UnixNano())

		// Trigger fires before the frame's data is pushed so the
		// trigger frame itself lands inside the post window.
		triggered := frame == opts.TriggerAt
		if triggered {
			recorder.trigger(int(opts.PostWindow) + 1)
		}

		latentPayload := make([]byte, opts.LatentPayloadLen)
		rng.Read(latentPayload)
		latents = wire.AppendRecord(latents, wire.StreamLatents, frameID, timestampNS, latentPayload)

		residualPayload := make([]byte, opts.ResidualPayloadLen)
		rng.Read(residualPayload)
		recorder.push(frameID, timestampNS, residualPayload)

		events = appendEvent(events, frameID, now, string(capsule.KindObservation), "")
		if triggered {
			events = appendEvent(events, frameID, now, string(capsule.KindSafetyTrigger), opts.TriggerReason)
		}
	}

	endedAt := opts.StartedAt.Add(time.Duration(opts.Frames) * frameInterval)
	meta, err := json.Marshal(capsule.Meta{
		RobotID:          opts.RobotID,
		SessionID:        opts.SessionID,
		StartedAt:        opts.StartedAt.UTC().Format(time.RFC3339Nano),
		EndedAt:          endedAt.UTC().Format(time.RFC3339Nano),
		EventLogEncoding: "utf-8",
		EventLogNewline:  "\n",
		LatentPayloadLen: uint32(opts.LatentPayloadLen),
		PreWindow:        opts.PreWindow,
		PostWindow:       opts.PostWindow,
	})
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}

	files := map[string][]byte{
		capsule.MetaFile:      meta,
		capsule.EventsFile:    events,
		capsule.LatentsFile:   latents,
		capsule.ResidualsFile: recorder.written,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func appendEvent(dst []byte, frameID uint64, at time.Time, kind, reason string) []byte {
	event := map[string]any{
		"frame_id": frameID,
		"t":        at.UTC().Format(time.RFC3339Nano),
		"kind":     kind,
	}
	if reason != "" {
		event["reason"] = reason
	}
	line, err := json.Marshal(event)
	if err != nil {
		panic("sim: encoding event: " + err.Error())
	}
	dst = append(dst, line...)
	return append(dst, '\n')
}

// residualRecorder mirrors the robot's conditional recorder: frames
// are buffered in a bounded ring until a trigger flushes the history
// and opens a countdown window of direct writes.
type residualRecorder struct {
	ring    [][]byte
	ringCap int

	written []byte

	// remaining counts post-window frames still to be written
	// directly. Zero means buffering.
	remaining int
}

func newResidualRecorder(preWindow int) *residualRecorder {
	return &residualRecorder{ringCap: preWindow, written: []byte{}}
}

func (r *residualRecorder) push(frameID, timestampNS uint64, payload []byte) {
	blob := wire.AppendRecord(nil, wire.StreamResiduals, frameID, timestampNS, payload)
	if r.remaining > 0 {
		r.written = append(r.written, blob...)
		r.remaining--
		return
	}
	if r.ringCap == 0 {
		return
	}
	if len(r.ring) == r.ringCap {
		r.ring = r.ring[1:]
	}
	r.ring = append(r.ring, blob)
}

// trigger flushes the pre-window history and opens the post window.
// A trigger inside an already-open window is ignored, matching the
// recorder's debounce.
func (r *residualRecorder) trigger(postFrames int) {
	if r.remaining > 0 {
		return
	}
	for _, blob := range r.ring {
		r.written = append(r.written, blob...)
	}
	r.ring = nil
	r.remaining = postFrames
}
