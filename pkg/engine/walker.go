package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/marmos91/blockvault/internal/logger"
	"github.com/marmos91/blockvault/pkg/catalog"
)

// walkDir visits one directory: records its catalog entry, then dispatches
// every child to the file engine, the symlink handler or a recursive call.
// Entries are visited depth-first in the directory's sorted order, so a run
// over an unchanged tree is deterministic.
func (s *Session) walkDir(ctx context.Context, sourceID, refSourceID int64, relativePath, absolutePath string) error {
	fi, err := os.Stat(absolutePath)
	if err != nil {
		logger.Warn("cannot stat directory, skipping", "path", absolutePath, "error", err)
		return nil
	}

	// Never walk into our own output. Identity is compared by inode, not by
	// path prefix: prefix comparison breaks across bind mounts and symlinks.
	if s.isDestination(fi) {
		return nil
	}

	if _, err := s.insertFileEntry(sourceID, relativePath, catalog.TypeDirectory, fi, nil); err != nil {
		return err
	}
	s.stats.Directories++
	s.fileProgress('D', relativePath)

	children, err := os.ReadDir(absolutePath)
	if err != nil {
		logger.Warn("cannot read directory, skipping", "path", absolutePath, "error", err)
		return nil
	}

	for _, child := range children {
		if ctx.Err() != nil {
			return ErrInterrupted
		}

		rel := path.Join(relativePath, child.Name())
		abs := filepath.Join(absolutePath, child.Name())

		if s.opts.Exclude.Match(rel) {
			s.stats.ExcludedPaths++
			s.fileProgress('X', rel)
			continue
		}

		info, err := child.Info()
		if err != nil {
			logger.Warn("cannot stat entry, skipping", "path", abs, "error", err)
			continue
		}

		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if err := s.backupSymlink(sourceID, rel, abs, info); err != nil {
				return err
			}
		case info.IsDir():
			if err := s.walkDir(ctx, sourceID, refSourceID, rel, abs); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := s.backupFile(sourceID, refSourceID, rel, abs, info); err != nil {
				return err
			}
		default:
			// Devices, fifos and sockets are not backed up.
			logger.Debug("skipping special file", "path", abs, "mode", info.Mode().String())
		}
	}
	return nil
}

// isDestination reports whether fi refers to the destination root or the
// in-progress set directory.
func (s *Session) isDestination(fi os.FileInfo) bool {
	if ri, err := os.Stat(s.root); err == nil && os.SameFile(ri, fi) {
		return true
	}
	if si, err := os.Stat(s.setPath); err == nil && os.SameFile(si, fi) {
		return true
	}
	return false
}

// backupSymlink records a symlink entry with its target. No block rows.
func (s *Session) backupSymlink(sourceID int64, relativePath, absolutePath string, fi os.FileInfo) error {
	link, err := os.Readlink(absolutePath)
	if err != nil {
		logger.Warn("cannot read symlink, skipping", "path", absolutePath, "error", err)
		return nil
	}

	if _, err := s.insertFileEntry(sourceID, relativePath, catalog.TypeSymlink, fi, &link); err != nil {
		return err
	}
	s.stats.Symlinks++
	s.fileProgress('S', relativePath)
	return nil
}

// insertFileEntry upserts one catalog entry from the stat result and returns
// the file id.
func (s *Session) insertFileEntry(sourceID int64, relativePath, fileType string, fi os.FileInfo, link *string) (int64, error) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("no stat data for %q", relativePath)
	}

	entry := &catalog.File{
		Source:  sourceID,
		Path:    relativePath,
		Type:    fileType,
		Mode:    strconv.FormatUint(uint64(st.Mode), 8),
		UID:     st.Uid,
		GID:     st.Gid,
		LastMod: catalog.EncodeMtime(mtimeNS(st)),
		Size:    st.Size,
		Link:    link,
	}

	id, err := s.cat.UpsertFile(entry)
	if err != nil {
		return 0, err
	}
	s.stats.CatalogEntries++
	return id, nil
}

// mtimeNS returns the mtime of st as unsigned nanoseconds.
func mtimeNS(st *syscall.Stat_t) uint64 {
	return uint64(st.Mtim.Sec)*1e9 + uint64(st.Mtim.Nsec)
}

// fileProgress prints a one-line per-entry marker when enabled: U for
// unchanged, S for symlink, D for directory, X for excluded.
func (s *Session) fileProgress(marker byte, relativePath string) {
	if !s.opts.ShowFileProgress {
		return
	}
	fmt.Printf("-/-/%c %s\n", marker, relativePath)
}
