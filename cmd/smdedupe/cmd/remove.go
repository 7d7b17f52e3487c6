package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/smdedupe/internal/remover"
	"github.com/dbsmedya/smdedupe/internal/verifier"
)

var (
	removeApply         bool
	removeNoSafetyCopy  bool
	removeExportDupes   string
	removeExportThinned string
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Scan, then delete the flagged records",
	Long: `Remove runs a scan and deletes every flagged record from the primary
database. Without --yes it only reports what would be removed.

Before deleting, a copy of the whole database is written beside it
(disable with --no-safety-copy). The flagged records can also be exported
to a separate database, or a thinned copy written, without touching the
primary.

Example:
  smdedupe remove --db library.sqlite --tags
  smdedupe remove --db library.sqlite --tags --export-duplicates dupes.sqlite
  smdedupe remove --db library.sqlite --tags --yes`,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeApply, "yes", "y", false,
		"Delete the flagged records")
	removeCmd.Flags().BoolVar(&removeNoSafetyCopy, "no-safety-copy", false,
		"Skip the safety copy before deleting")
	removeCmd.Flags().StringVar(&removeExportDupes, "export-duplicates", "",
		"Write the flagged records to a new database (default from removal.duplicates_path)")
	removeCmd.Flags().StringVar(&removeExportThinned, "export-thinned", "",
		"Write a copy of the database without the flagged records")

	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext(log)
	defer stop()

	ws, err := openWorkspace(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	set, status, agg, err := runDetectors(ctx, cfg, ws, log)
	if err != nil {
		return err
	}
	printScanReport(cfg, status, set, 0)

	if set.Len() == 0 {
		return nil
	}

	method, err := verifier.ParseMethod(cfg.Removal.Verify)
	if err != nil {
		return err
	}
	rm, err := remover.NewRemover(ws.primary, agg.Gate(), remover.Options{
		BatchSize:  cfg.Removal.BatchSize,
		SafetyCopy: cfg.Removal.SafetyCopy && !removeNoSafetyCopy,
		SafetyPath: cfg.Removal.SafetyPath,
		Verify:     method,
	}, log)
	if err != nil {
		return err
	}

	dupesPath := removeExportDupes
	if dupesPath == "" {
		dupesPath = cfg.Removal.DuplicatesPath
	}
	if dupesPath != "" {
		n, err := rm.ExportDuplicates(ctx, set, dupesPath)
		if err != nil {
			return fmt.Errorf("failed to export duplicates: %w", err)
		}
		printOK("Exported %d flagged records to %s", n, dupesPath)
	}
	if removeExportThinned != "" {
		n, err := rm.ExportThinned(ctx, set, removeExportThinned)
		if err != nil {
			return fmt.Errorf("failed to export thinned database: %w", err)
		}
		printOK("Wrote %d remaining records to %s", n, removeExportThinned)
	}

	if !removeApply {
		printInfo("Re-run with --yes to delete %d records from %s.", set.Len(), cfg.Database.Path)
		return nil
	}

	stats, err := rm.Remove(ctx, set)
	if err != nil {
		return fmt.Errorf("removal failed: %w", err)
	}

	fmt.Fprintln(outputWriter)
	printSection("Removal")
	if stats.SafetyCopy != "" {
		printInfo("  Safety copy: %s", stats.SafetyCopy)
	}
	printInfo("  Batches:     %d", stats.Batches)
	printInfo("  Duration:    %s", stats.Duration)
	printOK("Removed %d of %d records.", stats.RowsDeleted, stats.Requested)
	return nil
}
