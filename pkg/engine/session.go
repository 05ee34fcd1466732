// Package engine implements the dedup-and-catalog backup engine: the session
// orchestrator, the recursive tree walker and the per-file block logic that
// together produce one point-in-time backup set.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/blockvault/internal/logger"
	"github.com/marmos91/blockvault/pkg/blockstore"
	"github.com/marmos91/blockvault/pkg/catalog"
	"github.com/marmos91/blockvault/pkg/exclude"
)

// InprogressDirName is the name of the active session directory under the
// destination root. It is renamed to a date-stamped set name on success.
const InprogressDirName = "inprogress"

// DatabaseFilename is the catalog database file inside each set.
const DatabaseFilename = "catalog.db"

// DefaultBlockSize is the block size used when the configuration does not
// override it: 2^27 bytes (128 MiB).
const DefaultBlockSize = 1 << 27

// ErrInterrupted is returned by Run when the context is cancelled mid-walk.
// The catalog is committed and the inprogress directory left in place for
// resumption by the next run.
var ErrInterrupted = errors.New("backup interrupted")

// Options configures one backup session.
type Options struct {
	// DestinationRoot is the directory holding all backup sets. It must
	// already exist.
	DestinationRoot string

	// Sources are the directories to back up.
	Sources []string

	// Exclude filters out matching relative paths. May be nil.
	Exclude *exclude.Pattern

	// BlockSize is the maximum block length. Zero means DefaultBlockSize.
	BlockSize int

	// DryRun suppresses every filesystem mutation and substitutes an
	// in-memory catalog; traversal and decisions are otherwise identical.
	// Because no block file is written, a block repeated within the run is
	// not classified as a duplicate of this set.
	DryRun bool

	// ShowBlockProgress prints a per-file created/checked/total block line.
	ShowBlockProgress bool

	// ShowFileProgress prints one marker line per catalog entry.
	ShowFileProgress bool
}

// Session carries the state of one backup run. Sessions are single-threaded:
// one shared read buffer, one open destination transaction, strict program
// order for every catalog and block write.
type Session struct {
	opts Options

	root    string // destination root
	setPath string // <root>/inprogress
	refSet  string // most recent historical set, empty when none

	cat    *catalog.Store
	ref    *catalog.RefStore
	blocks *blockstore.Store

	buf   []byte
	stats Stats

	finalSet string // date-stamped set path after rename
}

// NewSession validates the options and prepares a session.
func NewSession(opts Options) (*Session, error) {
	fi, err := os.Stat(opts.DestinationRoot)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("destination root is not a directory: %s", opts.DestinationRoot)
	}

	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}

	return &Session{
		opts: opts,
		root: opts.DestinationRoot,
		buf:  make([]byte, opts.BlockSize),
	}, nil
}

// Stats returns the counters accumulated so far.
func (s *Session) Stats() *Stats {
	return &s.stats
}

// ReferenceSet returns the historical set chosen as reference, or "".
func (s *Session) ReferenceSet() string {
	return s.refSet
}

// FinalSet returns the date-stamped set path after a successful run. In
// dry-run mode it is the name the rename would have produced.
func (s *Session) FinalSet() string {
	return s.finalSet
}

// Run performs the backup: select the reference set, create the in-progress
// set, walk every source root, commit and rename. On context cancellation it
// commits what was catalogued and returns ErrInterrupted, leaving the
// inprogress directory in place.
func (s *Session) Run(ctx context.Context) error {
	s.setPath = filepath.Join(s.root, InprogressDirName)

	var err error
	s.refSet, err = selectReferenceSet(s.root)
	if err != nil {
		return err
	}
	if s.refSet != "" {
		logger.Info("reference set selected", "set", s.refSet)
	} else {
		logger.Info("no reference set found, full backup")
	}

	if err := s.openStores(); err != nil {
		return err
	}

	var walkErr error
	for _, source := range s.opts.Sources {
		if walkErr = s.backupSource(ctx, source); walkErr != nil {
			break
		}
	}

	// The catalog is committed and closed even on interrupt, so the
	// inprogress set can be resumed; the rename only happens after a clean
	// close so the database is fully checkpointed before the set moves.
	if err := s.closeStores(); err != nil {
		if walkErr != nil {
			return walkErr
		}
		return err
	}
	if walkErr != nil {
		return walkErr
	}

	return s.renameToDate()
}

// openStores creates the in-progress set, opens the destination catalog
// read-write and the reference catalog read-only, and sets up the block store.
func (s *Session) openStores() error {
	var err error
	if s.opts.DryRun {
		s.cat, err = catalog.OpenMemory()
	} else {
		if err := os.MkdirAll(s.setPath, 0755); err != nil {
			return fmt.Errorf("failed to create set directory: %w", err)
		}
		s.cat, err = catalog.Open(filepath.Join(s.setPath, DatabaseFilename))
	}
	if err != nil {
		return err
	}

	if s.refSet != "" {
		s.ref, err = catalog.OpenReference(filepath.Join(s.refSet, DatabaseFilename))
		if err != nil {
			return err
		}
	}

	s.blocks = blockstore.New(s.root, s.setPath, s.refSet, s.opts.DryRun)
	return nil
}

func (s *Session) closeStores() error {
	var closeErr error
	if s.cat != nil {
		closeErr = s.cat.Close()
		s.cat = nil
	}
	if s.ref != nil {
		if err := s.ref.Close(); err != nil {
			logger.Error("failed to close reference catalog", "error", err)
		}
		s.ref = nil
	}
	return closeErr
}

// backupSource catalogs one source root and walks its tree.
func (s *Session) backupSource(ctx context.Context, source string) error {
	abs, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("failed to resolve source %q: %w", source, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	sourceID, err := s.cat.UpsertSource(abs)
	if err != nil {
		return err
	}

	var refSourceID int64
	if s.ref != nil {
		refSourceID, err = s.ref.FindSource(abs)
		if err != nil {
			return err
		}
	}

	logger.Info("backing up source", "path", abs, "dry_run", s.opts.DryRun)
	return s.walkDir(ctx, sourceID, refSourceID, "/", abs)
}

// selectReferenceSet picks the most recent historical set under root: the
// directory with a leading digit whose (date, serial) sort key is greatest,
// where names split as YYYYMMDD or YYYYMMDD-N.
func selectReferenceSet(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("failed to read destination root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) == 0 {
			continue
		}
		if c := e.Name()[0]; c < '0' || c > '9' {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", nil
	}

	sort.Slice(names, func(i, j int) bool {
		pi, si := splitSetName(names[i])
		pj, sj := splitSetName(names[j])
		if pi != pj {
			return pi < pj
		}
		return si < sj
	})
	return filepath.Join(root, names[len(names)-1]), nil
}

// splitSetName splits a set name on the first '-' into its date prefix and
// numeric serial. A name without a serial sorts as serial 0.
func splitSetName(name string) (string, int) {
	prefix, suffix, found := strings.Cut(name, "-")
	if !found {
		return name, 0
	}
	serial, _ := strconv.Atoi(suffix)
	return prefix, serial
}

// renameToDate renames inprogress to today's date, or the first free
// date-serial name. Dry-run reports the would-be name without renaming.
func (s *Session) renameToDate() error {
	date := time.Now().Format("20060102")

	name := date
	for serial := 1; ; serial++ {
		if _, err := os.Stat(filepath.Join(s.root, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d", date, serial)
	}

	target := filepath.Join(s.root, name)
	if !s.opts.DryRun {
		if err := os.Rename(s.setPath, target); err != nil {
			return fmt.Errorf("failed to rename set: %w", err)
		}
	}
	s.finalSet = target
	return nil
}
