package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/darkroom/internal/maintenance"
	"github.com/DukeRupert/darkroom/internal/repository"
)

var fixDatesDryRun bool

// fixDatesCmd represents the fix-dates command.
var fixDatesCmd = &cobra.Command{
	Use:   "fix-dates",
	Short: "Rewrite malformed photo capture dates",
	Long: `Finds photos whose taken_at_naive is not "YYYY-MM-DD HH:MM:SS" and
rewrites it. Bare dates get midnight, missing seconds get ":00", anything
else is replaced with taken_at in UTC.

	darkroomctl fix-dates --dry-run
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		repairer := maintenance.NewDateRepairer(repository.NewPhotoRepository(db), commandLogger(cmd, cfg))
		result, err := repairer.Run(cmd.Context(), fixDatesDryRun)
		if err != nil {
			return err
		}
		printDateRepair(cmd, result)
		return nil
	},
}

func printDateRepair(cmd *cobra.Command, result maintenance.DateRepairResult) {
	out := cmd.OutOrStdout()
	for _, d := range result.Details {
		fmt.Fprintf(out, "%s\t%q -> %q\n", d.ID, d.Before, d.After)
	}
	verb := "fixed"
	if result.DryRun {
		verb = "would fix"
	}
	fmt.Fprintf(out, "%s %d photo(s)\n", verb, result.Fixed)
}

func init() {
	rootCmd.AddCommand(fixDatesCmd)
	fixDatesCmd.Flags().BoolVar(&fixDatesDryRun, "dry-run", false, "report changes without writing them")
}
