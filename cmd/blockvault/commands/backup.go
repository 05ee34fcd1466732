package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/blockvault/internal/logger"
	"github.com/marmos91/blockvault/pkg/config"
	"github.com/marmos91/blockvault/pkg/engine"
	"github.com/marmos91/blockvault/pkg/exclude"
	"github.com/marmos91/blockvault/pkg/metrics"
)

var (
	backupDestination   string
	backupExcludes      []string
	backupDryRun        bool
	backupBlockProgress bool
	backupFileProgress  bool
	backupMetricsFile   string
)

var backupCmd = &cobra.Command{
	Use:   "backup [flags] source...",
	Short: "Back up one or more directory trees",
	Long: `Back up the given source directories into the destination root.

A new set is created under <destination>/inprogress and renamed to a
date-stamped name on success. Files unchanged since the most recent set are
reused by hard link; identical blocks are shared across all sets under the
destination root.

On interrupt (SIGINT/SIGTERM) the catalog is committed and the inprogress
directory is kept; the next run resumes against it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupDestination, "destination", "d", "", "backup data store directory (required)")
	backupCmd.Flags().StringArrayVar(&backupExcludes, "exclude", nil, "exclude path or name (glob-like, repeatable)")
	backupCmd.Flags().BoolVarP(&backupDryRun, "dry-run", "n", false, "walk and classify without writing anything")
	backupCmd.Flags().BoolVar(&backupBlockProgress, "show-block-progress", false, "show per-block progress")
	backupCmd.Flags().BoolVar(&backupFileProgress, "show-file-progress", false, "show per-entry progress")
	backupCmd.Flags().StringVar(&backupMetricsFile, "metrics-textfile", "", "write session metrics to this file in Prometheus text format")
	_ = backupCmd.MarkFlagRequired("destination")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	patterns := append(append([]string{}, cfg.Backup.Exclude...), backupExcludes...)
	pattern, err := exclude.Compile(patterns)
	if err != nil {
		return err
	}

	session, err := engine.NewSession(engine.Options{
		DestinationRoot:   backupDestination,
		Sources:           args,
		Exclude:           pattern,
		BlockSize:         cfg.Backup.BlockSize.Int(),
		DryRun:            backupDryRun,
		ShowBlockProgress: backupBlockProgress,
		ShowFileProgress:  backupFileProgress,
	})
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel the walk; the engine commits what it catalogued
	// and leaves inprogress in place for resumption.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = session.Run(ctx)
	if errors.Is(err, engine.ErrInterrupted) {
		logger.Warn("backup interrupted, inprogress set kept for resumption")
		os.Exit(130)
	}
	if err != nil {
		return err
	}

	session.Stats().Report(os.Stdout, session.FinalSet(), session.ReferenceSet(), backupDryRun)

	metricsFile := backupMetricsFile
	if metricsFile == "" {
		metricsFile = cfg.Metrics.Textfile
	}
	if metricsFile != "" && !backupDryRun {
		if err := metrics.WriteTextfile(metricsFile, session.Stats(), time.Now().Unix()); err != nil {
			logger.Error("failed to write metrics textfile", "path", metricsFile, "error", err)
		}
	}

	return nil
}
