package catalog

// Entry types stored in the file table.
const (
	// TypeFile is a regular file with associated block rows.
	TypeFile = "F"

	// TypeSymlink is a symbolic link; Link holds the target, no block rows.
	TypeSymlink = "S"

	// TypeDirectory is a directory entry, no block rows.
	TypeDirectory = "D"
)

// Source is a backed-up source root directory.
type Source struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Path string `gorm:"column:path;uniqueIndex;not null"`
}

// TableName keeps the table name singular; the on-disk schema is the contract
// shared by every set under a destination root.
func (Source) TableName() string { return "source" }

// File is one catalog entry: a regular file, symlink or directory, keyed by
// (source, path) where path is relative to the source root.
type File struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Source int64  `gorm:"column:source;not null;uniqueIndex:idx_file_source_path"`
	Path   string `gorm:"column:path;not null;uniqueIndex:idx_file_source_path"`
	Type   string `gorm:"column:type"`
	Mode   string `gorm:"column:mode"` // octal mode string, includes file type bits
	UID    uint32 `gorm:"column:uid"`
	GID    uint32 `gorm:"column:gid"`
	// LastMod is the file's mtime in nanoseconds, stored in the signed
	// two's-complement form produced by EncodeMtime.
	LastMod int64   `gorm:"column:lastmod"`
	Size    int64   `gorm:"column:size"`
	Link    *string `gorm:"column:link"` // symlink target, nil otherwise
}

func (File) TableName() string { return "file" }

// Block is one contiguous span of a regular file, stored on disk under its
// SHA-1 hex name. Rows for a file cover it gap-free from offset 0.
type Block struct {
	File   int64  `gorm:"column:file;not null;uniqueIndex:idx_block_file_offset_size"`
	Offset int64  `gorm:"column:offset;not null;uniqueIndex:idx_block_file_offset_size"`
	Size   int64  `gorm:"column:size;not null;uniqueIndex:idx_block_file_offset_size"`
	Hash   string `gorm:"column:hash;not null"`
}

func (Block) TableName() string { return "block" }

// EncodeMtime folds an unsigned 64-bit nanosecond timestamp into the signed
// range for storage. The catalog column is a signed integer; values with the
// top bit set wrap to their two's-complement form so that unsigned timestamps
// round-trip exactly through the database.
func EncodeMtime(ns uint64) int64 {
	return int64(ns)
}

// DecodeMtime reverses EncodeMtime.
func DecodeMtime(v int64) uint64 {
	return uint64(v)
}
