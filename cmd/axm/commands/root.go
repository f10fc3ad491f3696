// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the axm command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/clock"
	"github.com/axm-foundation/axm/lib/compile"
	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/fault"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/sim"
	"github.com/axm-foundation/axm/lib/verify"
)

// Root returns the top-level axm command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "axm",
		Summary: "Compile and verify flight-recorder evidence shards",
		Description: `axm turns robot flight-recorder capsules into immutable,
Merkle-hashed, Ed25519-signed evidence shards, and verifies existing
shards bit-for-bit against disk and the trust store.`,
		Subcommands: []*cli.Command{
			compileCommand(),
			verifyCommand(),
			simCommand(),
		},
	}
}

// newLogger builds the text logger commands share. Verbosity is the
// only knob: evidence tooling must never write progress to stdout,
// which is reserved for machine-readable results.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// faultExit wraps a pipeline error with its stable exit code.
func faultExit(err error) error {
	if err == nil {
		return nil
	}
	return &cli.ExitError{Code: fault.KindOf(err).ExitCode(), Err: err}
}

func compileCommand() *cli.Command {
	var configPath string
	var keyFile string
	var strictWindows bool
	var verbose bool

	return &cli.Command{
		Name:    "compile",
		Summary: "Compile a capsule into a signed shard",
		Usage:   "axm compile <capsule_dir> <shard_out> [flags]",
		Description: `Reads a capsule directory, cross-validates the narrative event log
against the binary streams on disk, and emits a signed shard. The
shard is bit-reproducible for a given capsule, key, and timestamp.

Exit codes above 9 identify the failure kind; see the fault package.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("compile", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: $AXM_CONFIG or built-in defaults)")
			flags.StringVar(&keyFile, "key-file", "", "publisher Ed25519 seed file (overrides config)")
			flags.BoolVar(&strictWindows, "strict-windows", false, "fail on residual gaps inside trigger windows")
			flags.BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: axm compile <capsule_dir> <shard_out>")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if keyFile == "" {
				keyFile = cfg.Signing.KeyFile
			}
			if keyFile == "" {
				return fmt.Errorf("no signing key: pass --key-file or set signing.key_file in config")
			}
			signer, err := shard.LoadSigner(keyFile)
			if err != nil {
				return err
			}

			opts := compile.Options{
				Config: cfg,
				Signer: signer,
				Clock:  clock.Real(),
				Logger: newLogger(verbose),
			}
			opts.Policy.StrictResidualWindows = strictWindows

			manifest, err := compile.Run(context.Background(), args[0], args[1], opts)
			if err != nil {
				return faultExit(err)
			}
			fmt.Printf("shard %s\nmerkle_root %s\npublisher %s\n", args[1], manifest.MerkleRoot, manifest.Publisher)
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	var configPath string
	var capsuleDir string
	var trustStorePath string
	var verbose bool

	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a shard against disk bytes and the trust store",
		Usage:   "axm verify <shard_dir> [--capsule <dir>] [flags]",
		Description: `Re-checks every shard invariant: signature over the manifest bytes,
publisher membership in the trust store, and the recomputed Merkle
root. With --capsule, additionally rehashes the event log, re-scans
the binary streams, re-runs the judge, and compares every span row
byte-exact against the capsule.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (default: $AXM_CONFIG or built-in defaults)")
			flags.StringVar(&capsuleDir, "capsule", "", "capsule directory for the deep pass")
			flags.StringVar(&trustStorePath, "trust-store", "", "trust store (default: the shard's governance copy)")
			flags.BoolVarP(&verbose, "verbose", "v", false, "log verification progress")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: axm verify <shard_dir> [--capsule <dir>]")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			report, err := verify.Run(args[0], verify.Options{
				TrustStorePath: trustStorePath,
				CapsuleDir:     capsuleDir,
				Config:         cfg,
				Logger:         newLogger(verbose),
			})
			if err != nil {
				return faultExit(err)
			}
			fmt.Printf("PASS %s checks=%v spans=%d streams=%d\n",
				args[0], report.Checks, report.SpanRows, report.StreamRows)
			return nil
		},
	}
}

func simCommand() *cli.Command {
	var frames int
	var trigger int
	var pre, post uint64
	var seed int64

	return &cli.Command{
		Name:    "sim",
		Summary: "Generate a deterministic test capsule",
		Usage:   "axm sim <out_dir> [flags]",
		Description: `Writes a simulated flight-recorder capsule: a contiguous latent
stream, one observation event per frame, and — with --trigger — a
safety trigger whose pre/post residual window is recorded the way the
robot's conditional recorder would.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("sim", pflag.ContinueOnError)
			flags.IntVar(&frames, "frames", 100, "session length in frames")
			flags.IntVar(&trigger, "trigger", -1, "safety trigger frame (-1 for a safe run)")
			flags.Uint64Var(&pre, "pre", 5, "residual pre-window in frames")
			flags.Uint64Var(&post, "post", 5, "residual post-window in frames")
			flags.Int64Var(&seed, "seed", 1, "payload PRNG seed")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: axm sim <out_dir>")
			}
			err := sim.Generate(args[0], sim.Options{
				Frames:     frames,
				TriggerAt:  trigger,
				PreWindow:  pre,
				PostWindow: post,
				Seed:       seed,
			})
			if err != nil {
				return err
			}
			fmt.Printf("capsule %s\n", args[0])
			return nil
		},
	}
}
