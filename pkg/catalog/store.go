// Package catalog persists the per-set backup catalog: source roots, file
// entries and the ordered blocks belonging to each regular file.
//
// Each backup set owns one catalog database file. The destination catalog is
// opened read-write with a single long-lived transaction committed every
// CommitInterval file upserts; the reference catalog of the previous set is
// opened read-only.
package catalog

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// CommitInterval is the number of file upserts between transaction commits.
const CommitInterval = 100

// Store is the read-write catalog of the in-progress set.
type Store struct {
	db *gorm.DB
	tx *gorm.DB

	commitInterval int
	pendingFiles   int
}

// Open opens (creating if necessary) the catalog database at path and starts
// the first transaction.
func Open(path string) (*Store, error) {
	// WAL keeps the database readable by `sets list` while a backup runs;
	// busy_timeout guards against transient locking from such readers.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return open(sqlite.Open(dsn))
}

// OpenMemory opens an in-memory catalog. Dry-run sessions use it so the
// traversal and decision logic run unchanged without touching the disk.
func OpenMemory() (*Store, error) {
	return open(sqlite.Open(":memory:"))
}

func open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if err := db.AutoMigrate(&Source{}, &File{}, &Block{}); err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	s := &Store{
		db:             db,
		commitInterval: CommitInterval,
	}
	s.tx = s.db.Begin()
	if s.tx.Error != nil {
		return nil, fmt.Errorf("failed to begin catalog transaction: %w", s.tx.Error)
	}
	return s, nil
}

// SetCommitInterval overrides the commit interval. Used by tests.
func (s *Store) SetCommitInterval(n int) {
	if n > 0 {
		s.commitInterval = n
	}
}

// UpsertSource inserts or refreshes the source root row keyed by path and
// returns its id. An existing row keeps its id.
func (s *Store) UpsertSource(path string) (int64, error) {
	src := Source{Path: path}
	err := s.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoNothing: true,
	}).Create(&src).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %q: %w", path, err)
	}

	var got Source
	if err := s.tx.Where("path = ?", path).First(&got).Error; err != nil {
		return 0, fmt.Errorf("failed to read back source %q: %w", path, err)
	}
	return got.ID, nil
}

// UpsertFile inserts or replaces the file entry keyed by (source, path),
// preserving the id of an existing row, and returns that id.
//
// Every CommitInterval successful upserts the current transaction is
// committed and a new one begun.
func (s *Store) UpsertFile(entry *File) (int64, error) {
	err := s.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "mode", "uid", "gid", "lastmod", "size", "link",
		}),
	}).Create(entry).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file %q: %w", entry.Path, err)
	}

	var got File
	err = s.tx.Select("id").
		Where("source = ? AND path = ?", entry.Source, entry.Path).
		First(&got).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read back file %q: %w", entry.Path, err)
	}

	s.pendingFiles++
	if s.pendingFiles%s.commitInterval == 0 {
		if err := s.Commit(); err != nil {
			return 0, err
		}
	}

	return got.ID, nil
}

// DeleteBlocksFor removes every block row belonging to fileID. Called before
// re-processing a file so a partially backed-up set can be re-run.
func (s *Store) DeleteBlocksFor(fileID int64) error {
	if err := s.tx.Where("file = ?", fileID).Delete(&Block{}).Error; err != nil {
		return fmt.Errorf("failed to delete blocks for file %d: %w", fileID, err)
	}
	return nil
}

// InsertBlock appends one block row. A uniqueness violation means the caller
// skipped DeleteBlocksFor and is a bug, not a recoverable condition.
func (s *Store) InsertBlock(fileID, offset, size int64, hash string) error {
	b := Block{File: fileID, Offset: offset, Size: size, Hash: hash}
	if err := s.tx.Create(&b).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("duplicate block row (file=%d offset=%d size=%d): %w", fileID, offset, size, err)
		}
		return fmt.Errorf("failed to insert block row: %w", err)
	}
	return nil
}

// Commit commits the current transaction and begins a new one.
func (s *Store) Commit() error {
	if err := s.tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit catalog transaction: %w", err)
	}
	s.tx = s.db.Begin()
	if s.tx.Error != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", s.tx.Error)
	}
	return nil
}

// Close commits outstanding work and closes the database.
func (s *Store) Close() error {
	if err := s.Commit(); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
