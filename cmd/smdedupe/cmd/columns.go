package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "List the searchable columns of a database",
	Long: `Columns shows the record count and the columns available for grouping
and find/replace. Internal bookkeeping columns are hidden.

Example:
  smdedupe columns --db library.sqlite`,
	RunE: runColumns,
}

func init() {
	rootCmd.AddCommand(columnsCmd)
}

func runColumns(cmd *cobra.Command, args []string) error {
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

	total, err := ws.primary.RowCount(ctx)
	if err != nil {
		return err
	}
	columns, err := ws.primary.ColumnNames(ctx)
	if err != nil {
		return err
	}

	printHeader("Database: %s", cfg.Database.Path)
	printInfo("  Table:   %s", ws.primary.Table())
	printInfo("  Records: %d", total)
	printInfo("")

	rows := make([][]string, 0, len(columns))
	for i, c := range columns {
		rows = append(rows, []string{strconv.Itoa(i + 1), c})
	}
	printSection("Columns")
	printInfo("%s", renderTable([]string{"#", "Column"}, rows, []columnAlignment{alignRight, alignLeft}))
	return nil
}
