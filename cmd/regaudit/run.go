package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"regaudit/internal/ai"
	"regaudit/internal/events"
	"regaudit/internal/pipeline"
	"regaudit/internal/runstate"
	"regaudit/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Execute the audit pipeline for a project",
	Long: `Run all four pipeline stages for a registered project, printing live
progress and a final per-clause verdict table.

A second run over unchanged inputs completes without any provider calls.
Interrupting with Ctrl-C stops between work items; completed items are
already saved and the next run resumes from them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		proj, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		llm, err := ai.NewAnthropicService(settings.AnthropicAPIKey, retryConfig(settings))
		if err != nil {
			return err
		}
		embedder, err := ai.NewOpenAIEmbedder(settings.EmbeddingBaseURL,
			settings.EmbeddingAPIKey, settings.EmbedRateLimit, retryConfig(settings))
		if err != nil {
			return err
		}
		contentCache, err := openCache(settings)
		if err != nil {
			return err
		}
		defer contentCache.Close()

		store, err := runstate.Open(proj.RunStatePath(), proj.Name)
		if err != nil {
			return err
		}

		runner, err := pipeline.New(proj, store, contentCache, llm, embedder, settings, printProgress)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runner.Run(ctx); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted; completed work is saved. Re-run to resume.")
				return nil
			}
			return err
		}

		printVerdictTable(store.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func printProgress(e events.Event) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	tag := string(e.Type)
	if e.ClauseID != "" {
		tag += " " + e.ClauseID
	}
	if e.TaskID != "" {
		tag += "/" + e.TaskID
	}
	switch e.Severity {
	case events.SeverityError:
		fmt.Printf("  %s %s: %s\n", red("✗"), tag, e.Err)
	default:
		fmt.Printf("  %s %s\n", gray(tag), e.Message)
	}
}

func printVerdictTable(st *runstate.RunState) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Audit Results: "+st.ProjectName+" ==="))
	fmt.Printf("%-12s %-15s %-10s %s\n", "CLAUSE", "VERDICT", "CONF", "DETAIL")

	ids := st.ClauseIDs()
	sort.Strings(ids)
	for _, id := range ids {
		c := st.Clauses[id]
		switch {
		case c.State == types.StateSkipped:
			fmt.Printf("%-12s %-15s %-10s %s\n", id, gray("skipped"), "-", "no procedure required")
		case c.State == types.StateFailed:
			fmt.Printf("%-12s %-15s %-10s %s\n", id, red("failed"), "-", c.Error)
		case c.Verdict != nil:
			verdict := string(c.Verdict.Status)
			switch c.Verdict.Status {
			case types.VerdictCompliant:
				verdict = green(verdict)
			case types.VerdictNonCompliant:
				verdict = red(verdict)
			default:
				verdict = yellow(verdict)
			}
			fmt.Printf("%-12s %-15s %-10.2f %s\n", id, verdict, c.Verdict.Confidence, firstLine(c.Verdict.Description))
		default:
			fmt.Printf("%-12s %-15s %-10s %s\n", id, gray(string(c.State)), "-", "")
		}
	}
	fmt.Println()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
