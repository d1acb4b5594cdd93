// clean.go prunes stale package caches.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vesper-sci/vesper/internal/cleanup"
)

var (
	cleanMaxAgeDays int
	cleanDryRun     bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune package cache files not used recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		cacheDir := filepath.Join(dataDir(), "package_cache")
		pruned, err := cleanup.PruneByAge(cacheDir, cleanMaxAgeDays, cleanDryRun)
		if err != nil {
			return err
		}
		if cleanDryRun {
			fmt.Printf("would remove %d cache files\n", len(pruned))
		} else {
			fmt.Printf("removed %d cache files\n", len(pruned))
		}
		for _, name := range pruned {
			fmt.Println("  " + name)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().IntVar(&cleanMaxAgeDays, "max-age", 30, "remove caches older than this many days")
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "only report what would be removed")
	rootCmd.AddCommand(cleanCmd)
}
