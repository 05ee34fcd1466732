package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/marmos91/blockvault/internal/logger"
	"github.com/marmos91/blockvault/pkg/blockstore"
	"github.com/marmos91/blockvault/pkg/catalog"
)

// backupFile processes one regular file: catalog the entry, then either reuse
// the reference set's blocks wholesale (unchanged file) or split and hash.
func (s *Session) backupFile(sourceID, refSourceID int64, relativePath, absolutePath string, fi os.FileInfo) error {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("no stat data for %q", relativePath)
	}

	fileID, err := s.insertFileEntry(sourceID, relativePath, catalog.TypeFile, fi, nil)
	if err != nil {
		return err
	}

	// Clear prior rows so a run against an existing inprogress set restarts
	// this file cleanly.
	if err := s.cat.DeleteBlocksFor(fileID); err != nil {
		return err
	}

	if refSourceID != 0 {
		reused, err := s.reuseFromReference(refSourceID, fileID, relativePath, st)
		if err != nil {
			return err
		}
		if reused {
			s.stats.UnchangedFiles++
			s.fileProgress('U', relativePath)
			return nil
		}
	}

	s.stats.ChangedFiles++
	return s.rehashFile(fileID, relativePath, absolutePath, st)
}

// shouldReuse reports whether the reference entry still describes the file:
// same encoded mtime and same size.
func shouldReuse(ref *catalog.File, mtimeNS uint64, size int64) bool {
	return ref.LastMod == catalog.EncodeMtime(mtimeNS) && ref.Size == size
}

// reuseFromReference attempts whole-file reuse. When the reference set holds
// an entry with matching mtime and size, every reference block is hard-linked
// into this set and its row recorded; the file is classified unchanged.
//
// A Missing link result is logged but the block row is still inserted, so the
// catalog keeps the full block sequence even when the reference tree lost the
// file. See DESIGN.md on this open question.
func (s *Session) reuseFromReference(refSourceID, fileID int64, relativePath string, st *syscall.Stat_t) (bool, error) {
	ref, err := s.ref.FindFile(refSourceID, relativePath)
	if err != nil {
		return false, err
	}
	if ref == nil || !shouldReuse(ref, mtimeNS(st), st.Size) {
		return false, nil
	}

	blocks, err := s.ref.Blocks(ref.ID)
	if err != nil {
		return false, err
	}

	for _, b := range blocks {
		if !s.opts.DryRun {
			result, err := s.blocks.LinkReferenceBlock(b.Hash)
			if err != nil {
				return false, err
			}
			if result == blockstore.Missing {
				logger.Warn("reference block file missing",
					"path", relativePath, "hash", b.Hash)
			}
		}
		s.stats.LinkedDiskBlocks += diskBlocks(b.Size)
		if err := s.cat.InsertBlock(fileID, b.Offset, b.Size, b.Hash); err != nil {
			return false, err
		}
	}
	return true, nil
}

// rehashFile reads the file block by block into the shared buffer, hashes
// each block, ensures it is present on disk and records its row.
//
// Open and read failures are not fatal to the session: the catalog entry
// stays, the remaining block rows are absent, and the walk continues.
func (s *Session) rehashFile(fileID int64, relativePath, absolutePath string, st *syscall.Stat_t) error {
	f, err := os.Open(absolutePath)
	if err != nil {
		logger.Warn("cannot open file, skipping", "path", absolutePath, "error", err)
		return nil
	}
	defer f.Close()

	total := (st.Size + int64(s.opts.BlockSize) - 1) / int64(s.opts.BlockSize)
	var checked, created, offset int64

	for {
		s.blockProgress(created, checked, total, relativePath, false)

		n, err := f.Read(s.buf)
		if n == 0 {
			if err != nil && err != io.EOF {
				logger.Warn("read failed mid-file, truncating",
					"path", absolutePath, "offset", offset, "error", err)
			}
			break
		}

		sum := sha1.Sum(s.buf[:n])
		hash := hex.EncodeToString(sum[:])

		result, berr := s.blocks.EnsureBlock(hash, s.buf[:n])
		if berr != nil {
			return berr
		}
		s.stats.ProcessedBlocks++
		switch result {
		case blockstore.Created:
			s.stats.CreatedBlocks++
			s.stats.CreatedDiskBlocks += diskBlocks(int64(n))
			created++
		case blockstore.Duplicate:
			s.stats.DuplicateBlocks++
			s.stats.LinkedDiskBlocks += diskBlocks(int64(n))
		case blockstore.LinkedFromPeer:
			s.stats.LinkedBlocks++
			s.stats.LinkedDiskBlocks += diskBlocks(int64(n))
		}

		if err := s.cat.InsertBlock(fileID, offset, int64(n), hash); err != nil {
			return err
		}
		offset += int64(n)
		checked++

		if err != nil {
			// Read returned data together with an error other than EOF.
			if err != io.EOF {
				logger.Warn("read failed mid-file, truncating",
					"path", absolutePath, "offset", offset, "error", err)
			}
			break
		}
	}

	s.blockProgress(created, checked, total, relativePath, true)
	return nil
}

// diskBlocks converts a byte count to 1 KiB disk blocks, rounding up.
func diskBlocks(size int64) int64 {
	return (size + 1023) / 1024
}

// blockProgress prints the created/checked/total line for a file.
func (s *Session) blockProgress(created, checked, total int64, relativePath string, final bool) {
	if !s.opts.ShowBlockProgress {
		return
	}
	if final {
		fmt.Printf("%d/%d/%d %s\n", created, checked, total, relativePath)
	} else {
		fmt.Printf("%d/%d/%d %s\r", created, checked, total, relativePath)
	}
}
