// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability and replay.
//
// The shard manifest embeds a creation timestamp. To keep compilation
// bit-reproducible, every component that needs the current time takes
// a Clock instead of calling the time package directly: production
// code injects Real(), tests and replay runs inject Fixed().
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fixed returns a Clock frozen at t. Compiling the same capsule twice
// under the same Fixed clock yields byte-identical manifests.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
