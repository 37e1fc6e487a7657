package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"regaudit/internal/runstate"
	"regaudit/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <project>",
	Short: "Show the last flushed audit state for a project",
	Long: `Read the project's run document and print per-state counts and the
verdict table. Safe to run while a pipeline run is in progress; it reads
the last flushed snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		proj, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		st, err := runstate.Load(proj.RunStatePath(), proj.Name)
		if err != nil {
			return err
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		if len(st.Clauses) == 0 {
			fmt.Printf("No runs recorded for %s yet\n", proj.Name)
			return nil
		}

		summary := st.Summary()
		fmt.Printf("%s  (updated %s)\n", yellow("Progress:"), st.UpdatedAt.Format("2006-01-02 15:04:05"))
		for _, state := range []types.ClauseState{
			types.StatePending, types.StateNeedChecked, types.StateSkipped,
			types.StatePlanned, types.StateSearched, types.StateJudged, types.StateFailed,
		} {
			if n := summary[state]; n > 0 {
				fmt.Printf("  %-13s %d\n", state, n)
			}
		}

		printVerdictTable(st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
