// regaudit assesses whether internal procedure documents satisfy external
// regulatory clauses, one project at a time.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	registryPath string
)

var rootCmd = &cobra.Command{
	Use:   "regaudit",
	Short: "Audit internal procedures against regulatory clauses",
	Long: `regaudit runs a four-stage audit pipeline over a project:

  1. need-check  decide which clauses require an internal procedure
  2. audit-plan  decompose each clause into searchable audit tasks
  3. search      retrieve supporting evidence from the procedure documents
  4. judge       render a per-clause compliance verdict

Results are cached by content and persisted after every step, so reruns
only pay for what changed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (YAML)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "project registry file (default: user config dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
