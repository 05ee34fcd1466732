package catalog

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RefStore is a read-only view of a historical set's catalog. The file engine
// consults it to classify files as unchanged; `sets list` uses it to report
// historical sets.
type RefStore struct {
	db *gorm.DB
}

// OpenReference opens the catalog database at path read-only.
func OpenReference(path string) (*RefStore, error) {
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open reference catalog %q: %w", path, err)
	}
	return &RefStore{db: db}, nil
}

// FindSource returns the id of the source row with the given path, or 0 when
// the reference set never backed up that root.
func (r *RefStore) FindSource(path string) (int64, error) {
	var src Source
	err := r.db.Where("path = ?", path).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up reference source %q: %w", path, err)
	}
	return src.ID, nil
}

// FindFile returns the regular-file entry at (sourceID, relativePath), or nil
// when the reference set has no such file.
func (r *RefStore) FindFile(sourceID int64, relativePath string) (*File, error) {
	var f File
	err := r.db.
		Where("source = ? AND path = ? AND type = ?", sourceID, relativePath, TypeFile).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up reference file %q: %w", relativePath, err)
	}
	return &f, nil
}

// Blocks returns the block rows of fileID ordered by offset, which for a
// well-formed catalog equals insertion order.
func (r *RefStore) Blocks(fileID int64) ([]Block, error) {
	var blocks []Block
	err := r.db.Where("file = ?", fileID).Order("offset").Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read reference blocks for file %d: %w", fileID, err)
	}
	return blocks, nil
}

// CountEntries returns the number of catalog entries in the set.
func (r *RefStore) CountEntries() (int64, error) {
	var n int64
	if err := r.db.Model(&File{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// CountBlocks returns the number of block rows in the set.
func (r *RefStore) CountBlocks() (int64, error) {
	var n int64
	if err := r.db.Model(&Block{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// DB returns the underlying GORM connection. This is useful for advanced
// queries and testing.
func (r *RefStore) DB() *gorm.DB {
	return r.db
}

// Close closes the underlying database.
func (r *RefStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
