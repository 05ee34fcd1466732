package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func strPtr(s string) *string { return &s }

func TestUpsertSourcePreservesID(t *testing.T) {
	s, _ := openTestStore(t)

	id1, err := s.UpsertSource("/home/user")
	require.NoError(t, err)
	require.NotZero(t, id1)

	id2, err := s.UpsertSource("/var/data")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// Upserting the same path again keeps its id.
	again, err := s.UpsertSource("/home/user")
	require.NoError(t, err)
	assert.Equal(t, id1, again)
}

func TestUpsertFilePreservesIDAndReplacesAttributes(t *testing.T) {
	s, _ := openTestStore(t)

	srcID, err := s.UpsertSource("/src")
	require.NoError(t, err)

	id1, err := s.UpsertFile(&File{
		Source: srcID, Path: "/a.txt", Type: TypeFile,
		Mode: "100644", UID: 1000, GID: 1000, LastMod: 111, Size: 6,
	})
	require.NoError(t, err)

	// Same (source, path): id preserved, attributes replaced.
	id2, err := s.UpsertFile(&File{
		Source: srcID, Path: "/a.txt", Type: TypeFile,
		Mode: "100600", UID: 1000, GID: 1000, LastMod: 222, Size: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, s.Commit())

	var got File
	require.NoError(t, s.db.Where("id = ?", id1).First(&got).Error)
	assert.Equal(t, "100600", got.Mode)
	assert.Equal(t, int64(222), got.LastMod)
	assert.Equal(t, int64(7), got.Size)
}

func TestUpsertFileDistinctSources(t *testing.T) {
	s, _ := openTestStore(t)

	src1, err := s.UpsertSource("/one")
	require.NoError(t, err)
	src2, err := s.UpsertSource("/two")
	require.NoError(t, err)

	id1, err := s.UpsertFile(&File{Source: src1, Path: "/same", Type: TypeFile})
	require.NoError(t, err)
	id2, err := s.UpsertFile(&File{Source: src2, Path: "/same", Type: TypeFile})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestBlockInsertAndDelete(t *testing.T) {
	s, _ := openTestStore(t)

	srcID, err := s.UpsertSource("/src")
	require.NoError(t, err)
	fileID, err := s.UpsertFile(&File{Source: srcID, Path: "/big", Type: TypeFile, Size: 300})
	require.NoError(t, err)

	require.NoError(t, s.InsertBlock(fileID, 0, 128, "aa11"))
	require.NoError(t, s.InsertBlock(fileID, 128, 128, "bb22"))
	require.NoError(t, s.InsertBlock(fileID, 256, 44, "cc33"))

	// Re-inserting the same (file, offset, size) is a constraint violation.
	err = s.InsertBlock(fileID, 0, 128, "aa11")
	assert.Error(t, err)

	require.NoError(t, s.DeleteBlocksFor(fileID))
	require.NoError(t, s.InsertBlock(fileID, 0, 128, "dd44"))
	require.NoError(t, s.Commit())

	var blocks []Block
	require.NoError(t, s.db.Where("file = ?", fileID).Find(&blocks).Error)
	require.Len(t, blocks, 1)
	assert.Equal(t, "dd44", blocks[0].Hash)
}

func TestCommitIntervalTicks(t *testing.T) {
	s, path := openTestStore(t)
	s.SetCommitInterval(2)

	srcID, err := s.UpsertSource("/src")
	require.NoError(t, err)

	// Two upserts trigger an automatic commit; a concurrent read-only
	// connection must see the rows without an explicit Commit call.
	_, err = s.UpsertFile(&File{Source: srcID, Path: "/one", Type: TypeFile})
	require.NoError(t, err)
	_, err = s.UpsertFile(&File{Source: srcID, Path: "/two", Type: TypeFile})
	require.NoError(t, err)

	ref, err := OpenReference(path)
	require.NoError(t, err)
	defer ref.Close()

	n, err := ref.CountEntries()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReferenceLookups(t *testing.T) {
	s, path := openTestStore(t)

	srcID, err := s.UpsertSource("/data")
	require.NoError(t, err)
	fileID, err := s.UpsertFile(&File{
		Source: srcID, Path: "/dir/file.bin", Type: TypeFile,
		LastMod: EncodeMtime(1_600_000_000_000_000_000), Size: 256,
	})
	require.NoError(t, err)
	_, err = s.UpsertFile(&File{Source: srcID, Path: "/dir/link", Type: TypeSymlink, Link: strPtr("/target")})
	require.NoError(t, err)

	require.NoError(t, s.InsertBlock(fileID, 0, 128, "aaaa"))
	require.NoError(t, s.InsertBlock(fileID, 128, 128, "bbbb"))
	require.NoError(t, s.Commit())

	ref, err := OpenReference(path)
	require.NoError(t, err)
	defer ref.Close()

	gotSrc, err := ref.FindSource("/data")
	require.NoError(t, err)
	assert.Equal(t, srcID, gotSrc)

	missingSrc, err := ref.FindSource("/absent")
	require.NoError(t, err)
	assert.Zero(t, missingSrc)

	f, err := ref.FindFile(gotSrc, "/dir/file.bin")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(256), f.Size)
	assert.Equal(t, uint64(1_600_000_000_000_000_000), DecodeMtime(f.LastMod))

	// FindFile only matches regular files; the symlink entry is invisible.
	none, err := ref.FindFile(gotSrc, "/dir/link")
	require.NoError(t, err)
	assert.Nil(t, none)

	blocks, err := ref.Blocks(f.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, int64(0), blocks[0].Offset)
	assert.Equal(t, "aaaa", blocks[0].Hash)
	assert.Equal(t, int64(128), blocks[1].Offset)
}

func TestOpenMemory(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	srcID, err := s.UpsertSource("/src")
	require.NoError(t, err)
	_, err = s.UpsertFile(&File{Source: srcID, Path: "/x", Type: TypeFile})
	require.NoError(t, err)
}

func TestMtimeEncodingRoundTrip(t *testing.T) {
	values := []uint64{
		0,
		1,
		1_600_000_000_000_000_000,
		1 << 62,
		(1 << 63) - 1,
		1 << 63, // top bit set: wraps negative in storage
		^uint64(0),
	}
	for _, v := range values {
		assert.Equal(t, v, DecodeMtime(EncodeMtime(v)))
	}

	// Values beyond the signed range are stored negative.
	assert.Negative(t, EncodeMtime(1<<63))
	assert.Negative(t, EncodeMtime(^uint64(0)))
}
