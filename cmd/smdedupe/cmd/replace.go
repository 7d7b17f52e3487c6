package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/smdedupe/internal/replace"
)

var (
	replaceColumn  string
	replaceApply   bool
	replaceNoDirty bool
)

var replaceCmd = &cobra.Command{
	Use:   "replace FIND REPLACEMENT",
	Short: "Replace text within one column",
	Long: `Replace counts the records whose column contains FIND and, with --yes,
replaces every occurrence of FIND with REPLACEMENT in those records.
Matching is case-sensitive. Touched records are marked dirty so their
metadata can be re-embedded in the audio files, unless --no-dirty is given.

Example:
  smdedupe replace --db library.sqlite --column Filepath /Volumes/Old /Volumes/New
  smdedupe replace --db library.sqlite --column Filepath /Volumes/Old /Volumes/New --yes`,
	Args: cobra.ExactArgs(2),
	RunE: runReplace,
}

func init() {
	replaceCmd.Flags().StringVar(&replaceColumn, "column", "",
		"Column to search (default from replace.column)")
	replaceCmd.Flags().BoolVarP(&replaceApply, "yes", "y", false,
		"Apply the replacement after the preview")
	replaceCmd.Flags().BoolVar(&replaceNoDirty, "no-dirty", false,
		"Do not mark replaced records dirty")

	rootCmd.AddCommand(replaceCmd)
}

func runReplace(cmd *cobra.Command, args []string) error {
	find, replacement := args[0], args[1]

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	column := replaceColumn
	if column == "" {
		column = cfg.Replace.Column
	}
	markDirty := cfg.Replace.MarkDirty && !replaceNoDirty

	ctx, stop := signalContext(log)
	defer stop()

	ws, err := openWorkspace(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	session, err := replace.NewSession(ws.primary, nil, log)
	if err != nil {
		return err
	}

	count, err := session.Preview(ctx, column, find)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	if count == 0 {
		printOK("%s", session.Message())
		return nil
	}
	printWarn("%s", session.Message())

	if !replaceApply {
		printInfo("Re-run with --yes to replace '%s' with '%s'.", find, replacement)
		return nil
	}

	if _, err := session.Apply(ctx, replace.Request{
		Column:    column,
		Find:      find,
		Replace:   replacement,
		MarkDirty: markDirty,
	}); err != nil {
		return fmt.Errorf("replace failed: %w", err)
	}

	printOK("%s", session.Message())
	return nil
}
