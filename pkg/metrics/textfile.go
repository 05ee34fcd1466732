// Package metrics exports per-session backup counters in Prometheus text
// exposition format, for collection by a node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/blockvault/pkg/engine"
)

// WriteTextfile writes the session counters to path atomically (via the
// client library's rename) in Prometheus text format.
func WriteTextfile(path string, st *engine.Stats, completedAt int64) error {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) {
		promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "blockvault",
			Name:      name,
			Help:      help,
		}).Set(value)
	}

	gauge("catalog_entries", "Catalog entries inserted in the last run", float64(st.CatalogEntries))
	gauge("excluded_paths", "Paths excluded in the last run", float64(st.ExcludedPaths))
	gauge("files_changed", "Regular files split and hashed in the last run", float64(st.ChangedFiles))
	gauge("files_unchanged", "Regular files reused from the reference set", float64(st.UnchangedFiles))
	gauge("directories", "Directories catalogued in the last run", float64(st.Directories))
	gauge("symlinks", "Symbolic links catalogued in the last run", float64(st.Symlinks))
	gauge("blocks_processed", "Blocks examined on the rehash path", float64(st.ProcessedBlocks))
	gauge("blocks_duplicate", "Blocks already present in the same set", float64(st.DuplicateBlocks))
	gauge("blocks_linked", "Blocks hard-linked from a peer set", float64(st.LinkedBlocks))
	gauge("blocks_created", "Blocks written to disk", float64(st.CreatedBlocks))
	gauge("disk_blocks_linked_kibibytes", "KiB of blocks reused by hard link", float64(st.LinkedDiskBlocks))
	gauge("disk_blocks_created_kibibytes", "KiB of blocks newly written", float64(st.CreatedDiskBlocks))
	gauge("last_run_completed_timestamp_seconds", "Unix time the last run completed", float64(completedAt))

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
