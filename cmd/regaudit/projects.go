package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"regaudit/internal/project"
)

var (
	addRegulation string
	addDocs       []string
	addDataDir    string
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage registered audit projects",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a project (replaces an existing one with the same name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		name := args[0]
		dataDir := addDataDir
		if dataDir == "" {
			dataDir = filepath.Join(filepath.Dir(addRegulation), ".regaudit", name)
		}
		docs := make([]string, 0, len(addDocs))
		for _, d := range addDocs {
			abs, err := filepath.Abs(d)
			if err != nil {
				return err
			}
			docs = append(docs, abs)
		}
		regAbs, err := filepath.Abs(addRegulation)
		if err != nil {
			return err
		}

		p := project.Project{
			Name:           name,
			RegulationFile: regAbs,
			ProcedureDocs:  docs,
			DataDir:        dataDir,
		}
		if err := registry.Add(p); err != nil {
			return err
		}
		fmt.Printf("Registered project %s (%d procedure documents)\n", name, len(docs))
		return nil
	},
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		names := registry.Names()
		if len(names) == 0 {
			fmt.Println("No projects registered")
			return nil
		}
		bold := color.New(color.Bold).SprintFunc()
		for _, name := range names {
			p, _ := registry.Get(name)
			fmt.Printf("%s\n  regulation: %s\n  documents:  %d\n  data dir:   %s\n",
				bold(name), p.RegulationFile, len(p.ProcedureDocs), p.DataDir)
		}
		return nil
	},
}

var projectsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a project from the registry (data dir is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := registry.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed project %s\n", args[0])
		return nil
	},
}

func init() {
	projectsAddCmd.Flags().StringVar(&addRegulation, "regulation", "", "regulation clause file (JSON or YAML)")
	projectsAddCmd.Flags().StringSliceVar(&addDocs, "doc", nil, "procedure document (.txt/.md); repeatable")
	projectsAddCmd.Flags().StringVar(&addDataDir, "data-dir", "", "directory for run state and index artifacts")
	projectsAddCmd.MarkFlagRequired("regulation")
	projectsAddCmd.MarkFlagRequired("doc")

	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsRemoveCmd)
	rootCmd.AddCommand(projectsCmd)
}
