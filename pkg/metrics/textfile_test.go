package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blockvault/pkg/engine"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockvault.prom")

	st := &engine.Stats{
		CatalogEntries:  10,
		ChangedFiles:    3,
		UnchangedFiles:  5,
		CreatedBlocks:   7,
		LinkedBlocks:    2,
		DuplicateBlocks: 1,
	}
	require.NoError(t, WriteTextfile(path, st, 1700000000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "blockvault_catalog_entries 10")
	assert.Contains(t, out, "blockvault_files_changed 3")
	assert.Contains(t, out, "blockvault_files_unchanged 5")
	assert.Contains(t, out, "blockvault_blocks_created 7")
	assert.Contains(t, out, "blockvault_last_run_completed_timestamp_seconds 1.7e+09")
}

func TestWriteTextfileBadPath(t *testing.T) {
	st := &engine.Stats{}
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "sub", "x.prom"), st, 0)
	assert.Error(t, err)
}
