package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"regaudit/internal/cache"
)

var clearKind string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the global content cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		c, err := openCache(settings)
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.Stats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Cache: %s\n", stats.Path)
		if len(stats.Entries) == 0 {
			fmt.Println("  empty")
			return nil
		}
		for _, kind := range []string{cache.KindEmbedding, cache.KindJSON} {
			if n, ok := stats.Entries[kind]; ok {
				fmt.Printf("  %-10s %6d entries  %10d bytes\n", kind, n, stats.Bytes[kind])
			}
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached results (the only eviction path)",
	Long: `Remove cached embeddings and LLM results. The next run recomputes
everything that was cleared; run state and verdicts are not touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		c, err := openCache(settings)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Clear(context.Background(), clearKind)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cache entries\n", n)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&clearKind, "kind", "", "clear only one kind (embedding|json)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
