// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "axm",
		Subcommands: []*Command{
			{Name: "compile", Run: func(args []string) error {
				ran = append(ran, "compile:"+strings.Join(args, ","))
				return nil
			}},
		},
	}
	if err := root.Execute([]string{"compile", "a", "b"}); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 1 || ran[0] != "compile:a,b" {
		t.Errorf("ran = %v", ran)
	}
}

func TestExecuteUnknownSubcommand(t *testing.T) {
	root := &Command{Name: "axm", Subcommands: []*Command{{Name: "compile"}}}
	err := root.Execute([]string{"explode"})
	if err == nil || !strings.Contains(err.Error(), "explode") {
		t.Errorf("err = %v", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var verbose bool
	var got []string
	cmd := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "")
			return flags
		},
		Run: func(args []string) error {
			got = args
			return nil
		},
	}
	if err := cmd.Execute([]string{"-v", "shard-dir"}); err != nil {
		t.Fatal(err)
	}
	if !verbose || len(got) != 1 || got[0] != "shard-dir" {
		t.Errorf("verbose=%v args=%v", verbose, got)
	}
}

func TestHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "axm",
		Summary: "top",
		Subcommands: []*Command{
			{Name: "compile", Summary: "Compile a capsule"},
			{Name: "verify", Summary: "Verify a shard"},
		},
	}
	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"compile", "verify", "Compile a capsule"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestExitErrorCarriesCode(t *testing.T) {
	err := &ExitError{Code: 16}
	if err.ExitCode() != 16 {
		t.Errorf("ExitCode() = %d", err.ExitCode())
	}
}
