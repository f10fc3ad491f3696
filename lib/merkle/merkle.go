// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle computes the shard integrity root: a BLAKE3 Merkle
// tree over the shard's file tree.
//
// Leaves bind the relative path to the content —
// leaf = BLAKE3(path_bytes || 0x00 || file_bytes) — so renaming a
// file changes the root even when its bytes do not. Leaves are folded
// pairwise in a balanced binary tree; a level with an odd node count
// duplicates its trailing leaf. manifest.json and everything under
// sig/ are excluded from the tree: the manifest carries the root and
// the signature covers the manifest.
package merkle

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// Format returns the hex form of a hash, the representation stored in
// manifests.
func Format(h Hash) string { return hex.EncodeToString(h[:]) }

// Leaf computes the leaf hash binding a relative slash-path to its
// content.
func Leaf(relPath string, content []byte) Hash {
	hasher := blake3.New()
	hasher.Write([]byte(relPath))
	hasher.Write([]byte{0})
	hasher.Write(content)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// Root folds leaf hashes into the tree root. A single leaf is its own
// root; at every level an odd trailing node is duplicated so each
// parent always hashes exactly 64 bytes.
//
// Panics if leaves is empty: a shard always contains files.
func Root(leaves []Hash) Hash {
	if len(leaves) == 0 {
		panic("merkle.Root: empty leaf list")
	}

	// Work on a copy to avoid mutating the caller's slice.
	level := make([]Hash, len(leaves))
	copy(level, leaves)

	var combined [64]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[: len(level)/2 : len(level)/2]
		for i := 0; i < len(level); i += 2 {
			copy(combined[:32], level[i][:])
			copy(combined[32:], level[i+1][:])
			next[i/2] = blake3.Sum256(combined[:])
		}
		level = next
	}
	return level[0]
}

// TreeFiles enumerates the files under root that participate in the
// tree: every regular file except manifest.json at the top level and
// anything under sig/, as relative slash-paths sorted in lexicographic
// byte order.
func TreeFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "manifest.json" || strings.HasPrefix(rel, "sig/") {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking shard tree %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// TreeRoot computes the Merkle root of the shard at root. Leaf hashes
// are computed in parallel (hashing is the only stage of the pipeline
// where parallelism cannot disturb output bytes) and reduced in path
// order, so the result is identical to a sequential fold.
func TreeRoot(root string) (Hash, error) {
	files, err := TreeFiles(root)
	if err != nil {
		return Hash{}, err
	}
	if len(files) == 0 {
		return Hash{}, fmt.Errorf("shard %s has no files to hash", root)
	}

	leaves := make([]Hash, len(files))
	var group errgroup.Group
	group.SetLimit(runtime.NumCPU())
	for i, rel := range files {
		group.Go(func() error {
			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("reading %s for leaf hash: %w", rel, err)
			}
			leaves[i] = Leaf(rel, content)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Hash{}, err
	}
	return Root(leaves), nil
}
