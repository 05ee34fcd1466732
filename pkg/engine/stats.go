package engine

import (
	"fmt"
	"io"

	"github.com/marmos91/blockvault/internal/cli/output"
)

// Stats are the counters accumulated over one session. The engine is
// single-threaded, so plain fields suffice.
type Stats struct {
	CatalogEntries int64 // catalog entries inserted
	ExcludedPaths  int64 // paths skipped by the exclude pattern
	ChangedFiles   int64 // regular files split and hashed
	UnchangedFiles int64 // regular files reused from the reference set
	Directories    int64
	Symlinks       int64

	ProcessedBlocks int64 // blocks examined on the rehash path
	DuplicateBlocks int64 // blocks already present in this set
	LinkedBlocks    int64 // blocks hard-linked from a peer set
	CreatedBlocks   int64 // blocks written to disk

	// Disk usage tallies in 1 KiB units, rounded up per block.
	LinkedDiskBlocks  int64
	CreatedDiskBlocks int64
}

// Report writes the session summary as a key/value table.
func (st *Stats) Report(w io.Writer, createdSet, referenceSet string, dryRun bool) {
	if dryRun {
		fmt.Fprintln(w, "# Dry Run")
	}
	fmt.Fprintln(w, "# Statistics")

	if referenceSet == "" {
		referenceSet = "none"
	}

	output.PrintPairs(w, [][2]string{
		{"Created Set", createdSet},
		{"Reference Set", referenceSet},
		{"Excluded Paths", fmt.Sprint(st.ExcludedPaths)},
		{"Catalog Entries", fmt.Sprint(st.CatalogEntries)},
		{"  Changed Files", fmt.Sprint(st.ChangedFiles)},
		{"  Unchanged Files", fmt.Sprint(st.UnchangedFiles)},
		{"  Directories", fmt.Sprint(st.Directories)},
		{"  Symbolic Links", fmt.Sprint(st.Symlinks)},
		{"Blocks", fmt.Sprint(st.ProcessedBlocks)},
		{"  Duplicate", fmt.Sprint(st.DuplicateBlocks)},
		{"  Linked to Other Set", fmt.Sprint(st.LinkedBlocks)},
		{"  Created", fmt.Sprint(st.CreatedBlocks)},
		{"Disk Blocks", fmt.Sprintf("%d KiB", st.CreatedDiskBlocks+st.LinkedDiskBlocks)},
		{"  Linked", fmt.Sprintf("%d KiB", st.LinkedDiskBlocks)},
		{"  Created", fmt.Sprintf("%d KiB", st.CreatedDiskBlocks)},
	})
}
