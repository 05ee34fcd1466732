package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marmos91/blockvault/internal/cli/output"
	"github.com/marmos91/blockvault/pkg/catalog"
	"github.com/marmos91/blockvault/pkg/engine"
)

var setsDestination string

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "Inspect backup sets",
}

var setsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the sets under a destination root",
	RunE:  runSetsList,
}

func init() {
	setsCmd.PersistentFlags().StringVarP(&setsDestination, "destination", "d", "", "backup data store directory (required)")
	_ = setsCmd.MarkPersistentFlagRequired("destination")
	setsCmd.AddCommand(setsListCmd)
}

func runSetsList(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(setsDestination)
	if err != nil {
		return fmt.Errorf("failed to read destination root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == engine.InprogressDirName || (name[0] >= '0' && name[0] <= '9') {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		entryCount, blockCount := "-", "-"
		ref, err := catalog.OpenReference(filepath.Join(setsDestination, name, engine.DatabaseFilename))
		if err == nil {
			if n, err := ref.CountEntries(); err == nil {
				entryCount = fmt.Sprint(n)
			}
			if n, err := ref.CountBlocks(); err == nil {
				blockCount = fmt.Sprint(n)
			}
			ref.Close()
		}
		rows = append(rows, []string{name, entryCount, blockCount})
	}

	output.PrintTable(os.Stdout, []string{"Set", "Entries", "Blocks"}, rows)
	return nil
}
