package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/smdedupe/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets [NAME]",
	Short: "List presets or show one preset's tags and tie-break order",
	Long: `Presets lists the built-in presets. With a name, it prints the preset's
tie-break rules in priority order and its tag list.

Example:
  smdedupe presets
  smdedupe presets tjf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		rows := [][]string{}
		for _, name := range config.PresetNames() {
			p, _ := config.LookupPreset(name)
			rows = append(rows, []string{p.Name, strconv.Itoa(len(p.Order)), strconv.Itoa(len(p.Tags))})
		}
		printInfo("%s", renderTable(
			[]string{"Preset", "Rules", "Tags"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight},
		))
		return nil
	}

	p, ok := config.LookupPreset(args[0])
	if !ok {
		return fmt.Errorf("preset %q not found (available: %s)", args[0], strings.Join(config.PresetNames(), ", "))
	}

	printHeader("Preset: %s", p.Name)
	fmt.Fprintln(outputWriter)
	printSection("Tie-break Order (highest priority first)")
	for i, rule := range p.Order {
		printInfo("  [%d] %s", i+1, rule)
	}
	fmt.Fprintln(outputWriter)
	printSection("Tags")
	printInfo("  %s", strings.Join(p.Tags, " "))
	return nil
}
