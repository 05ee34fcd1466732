// Package blockstore manages the content-addressed block tree of a backup
// set: `<set>/<hh>/<rest>` where `hh` is the first two hex characters of the
// block's SHA-1 and `rest` the remaining 38.
//
// Blocks are raw bytes with no header. A block that already exists anywhere
// under the destination root is reused by hard link instead of rewritten, so
// equal content is stored once and shared across sets.
package blockstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureResult describes how EnsureBlock satisfied a request.
type EnsureResult int

const (
	// Created means the block file was written to the destination set.
	Created EnsureResult = iota

	// Duplicate means the same block was already produced earlier in this set.
	Duplicate

	// LinkedFromPeer means the block was hard-linked from a sibling set
	// under the same destination root.
	LinkedFromPeer
)

// LinkResult describes the outcome of LinkReferenceBlock.
type LinkResult int

const (
	// Linked means a hard link from the reference set was created.
	Linked LinkResult = iota

	// Exists means the destination block file already existed.
	Exists

	// Missing means the reference set has no block file for the hash. The
	// caller logs and continues; the catalog row is still recorded.
	Missing
)

// Store owns the block tree of the in-progress set.
type Store struct {
	root   string // destination root holding all sets
	set    string // in-progress set directory
	refSet string // reference set directory, empty when none
	dryRun bool
}

// New creates a block store for the in-progress set under root. refSet names
// the reference set directory and may be empty. With dryRun set, no
// filesystem mutation is performed.
func New(root, set, refSet string, dryRun bool) *Store {
	return &Store{root: root, set: set, refSet: refSet, dryRun: dryRun}
}

// Path returns the block file path for hash under base.
func Path(base, hash string) string {
	return filepath.Join(base, hash[:2], hash[2:])
}

// ensureShard creates the two-hex-char shard directory for hash if absent.
func (s *Store) ensureShard(hash string) error {
	if s.dryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(s.set, hash[:2]), 0755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}
	return nil
}

// EnsureBlock makes the block for (hash, data) present in the set.
//
// The block is a Duplicate when this set already holds it, LinkedFromPeer
// when the first block file of that hash found in any set under the
// destination root has the same size, and Created otherwise. A failed write
// is fatal: the set would be corrupt.
func (s *Store) EnsureBlock(hash string, data []byte) (EnsureResult, error) {
	if err := s.ensureShard(hash); err != nil {
		return 0, err
	}
	target := Path(s.set, hash)

	// Same block already produced earlier in this same set.
	if !s.dryRun {
		if fi, err := os.Stat(target); err == nil && fi.Mode().IsRegular() && fi.Size() == int64(len(data)) {
			return Duplicate, nil
		}
	}

	// Same block present in any sibling set: hard-link instead of writing.
	if peer := s.findPeer(hash, int64(len(data))); peer != "" {
		if !s.dryRun {
			if err := os.Link(peer, target); err != nil {
				return 0, fmt.Errorf("failed to link block from peer set: %w", err)
			}
		}
		return LinkedFromPeer, nil
	}

	if s.dryRun {
		return Created, nil
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create block file: %w", err)
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write block file: %w", err)
	}
	if n != len(data) {
		f.Close()
		return 0, fmt.Errorf("short write on block file %s: %d of %d bytes", target, n, len(data))
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close block file: %w", err)
	}
	return Created, nil
}

// findPeer returns the first block file of the given hash found in any set
// under the destination root, or "" when there is none or its size differs.
// Later matches are not examined.
func (s *Store) findPeer(hash string, size int64) string {
	matches, err := filepath.Glob(Path(filepath.Join(s.root, "*"), hash))
	if err != nil || len(matches) == 0 {
		return ""
	}
	peer := matches[0]
	fi, err := os.Stat(peer)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() != size {
		return ""
	}
	return peer
}

// LinkReferenceBlock hard-links the block for hash from the reference set
// into the in-progress set. Used when a whole file is reused unchanged.
func (s *Store) LinkReferenceBlock(hash string) (LinkResult, error) {
	if err := s.ensureShard(hash); err != nil {
		return 0, err
	}

	err := os.Link(Path(s.refSet, hash), Path(s.set, hash))
	switch {
	case err == nil:
		return Linked, nil
	case errors.Is(err, fs.ErrExist):
		return Exists, nil
	case errors.Is(err, fs.ErrNotExist):
		return Missing, nil
	default:
		return 0, fmt.Errorf("failed to link reference block: %w", err)
	}
}
