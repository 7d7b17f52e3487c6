package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/detector"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/scan"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// progressInterval is how often a running scan is polled.
var progressInterval = 200 * time.Millisecond

var scanLimit int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find records to remove without changing the database",
	Long: `Scan runs every enabled detector concurrently and reports the records
that would be removed. The database is not modified.

Example:
  smdedupe scan --db library.sqlite --tags
  smdedupe scan --db library.sqlite --group-by Show --compare archive.sqlite`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 20,
		"Number of flagged records to list (0 lists none, -1 lists all)")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
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

	set, status, _, err := runDetectors(ctx, cfg, ws, log)
	if err != nil {
		return err
	}

	printScanReport(cfg, status, set, scanLimit)
	return nil
}

// runDetectors starts a scan and polls it to completion, logging detector
// status changes. An interrupted scan is cancelled and drained.
func runDetectors(ctx context.Context, cfg *config.Config, ws *workspace, log *logger.Logger) (*types.RemovalSet, scan.Status, *scan.Aggregator, error) {
	agg, err := scan.NewAggregator(ws.primary, ws.secondary, nil, log)
	if err != nil {
		return nil, scan.Status{}, nil, err
	}

	total, err := ws.primary.RowCount(ctx)
	if err != nil {
		return nil, scan.Status{}, nil, err
	}
	log.Infow("Starting scan",
		"database", cfg.Database.Path,
		"records", total,
	)

	if _, err := agg.StartScan(ctx, scan.OptionsFromConfig(cfg)); err != nil {
		return nil, scan.Status{}, nil, fmt.Errorf("failed to start scan: %w", err)
	}

	status, err := pollScan(ctx, agg, log)
	if err != nil {
		return nil, status, agg, err
	}
	return agg.RemovalSet(), status, agg, nil
}

func pollScan(ctx context.Context, agg *scan.Aggregator, log *logger.Logger) (scan.Status, error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	seen := make(map[detector.Kind]string)
	for {
		status := agg.Poll()
		for _, d := range status.Detectors {
			if d.Enabled && seen[d.Kind] != d.Message {
				seen[d.Kind] = d.Message
				log.WithDetector(string(d.Kind)).Info(d.Message)
			}
		}
		if !status.Working() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			agg.Cancel()
			status, _ = agg.Wait(context.Background())
			return status, fmt.Errorf("scan interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func printScanReport(cfg *config.Config, status scan.Status, set *types.RemovalSet, limit int) {
	fmt.Fprintln(outputWriter)
	printHeader("Scan: %s", cfg.Database.Path)
	fmt.Fprintln(outputWriter)

	printSection("Detectors")
	rows := make([][]string, 0, len(status.Detectors))
	for _, d := range status.Detectors {
		if !d.Enabled {
			continue
		}
		rows = append(rows, []string{
			string(d.Kind),
			strconv.Itoa(d.Found),
			d.Duration.Round(time.Millisecond).String(),
			d.Message,
		})
	}
	fmt.Fprintln(outputWriter, renderTable(
		[]string{"Detector", "Found", "Time", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))

	for _, d := range status.Detectors {
		if d.Err != nil {
			printFail("%s: %v", d.Kind, d.Err)
		}
	}

	if limit != 0 && set.Len() > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Flagged Records")
		records := set.Records()
		shown := records
		if limit > 0 && len(records) > limit {
			shown = records[:limit]
		}
		recRows := make([][]string, 0, len(shown))
		for _, r := range shown {
			recRows = append(recRows, []string{
				strconv.FormatInt(r.ID, 10),
				truncateCell(r.Filename, maxCellWidth),
				r.Duration,
			})
		}
		fmt.Fprintln(outputWriter, renderTable(
			[]string{"ID", "Filename", "Duration"},
			recRows,
			[]columnAlignment{alignRight, alignLeft, alignRight},
		))
		if len(shown) < len(records) {
			printInfo("... and %d more", len(records)-len(shown))
		}
	}

	fmt.Fprintln(outputWriter)
	if set.Len() == 0 {
		printOK("%s", status.Message)
	} else {
		printWarn("%s", status.Message)
	}
}
