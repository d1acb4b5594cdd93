// Package cleanup implements pruning of stale per-package cache files.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PruneByAge removes package cache files not touched for maxAgeDays.
// If dryRun is true, no files are deleted; the function only returns the
// names that would be removed. Returns the list of pruned file names.
func PruneByAge(cacheDir string, maxAgeDays int, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var pruned []string

	for _, entry := range entries {
		if entry.IsDir() || !isPackageCache(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if !dryRun {
				path := filepath.Join(cacheDir, entry.Name())
				if rmErr := os.Remove(path); rmErr != nil {
					return pruned, fmt.Errorf("removing %s: %w", entry.Name(), rmErr)
				}
			}
			pruned = append(pruned, entry.Name())
		}
	}

	return pruned, nil
}

// PruneKeepRecent removes all package cache files except the most
// recently used keep files. If dryRun is true, no files are deleted.
// Returns the list of pruned file names.
func PruneKeepRecent(cacheDir string, keep int, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	type cacheFile struct {
		name  string
		mtime time.Time
	}
	var files []cacheFile
	for _, entry := range entries {
		if entry.IsDir() || !isPackageCache(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: entry.Name(), mtime: info.ModTime()})
	}

	// Most recently used first.
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	if keep < 0 {
		keep = 0
	}
	var pruned []string
	for i := keep; i < len(files); i++ {
		if !dryRun {
			path := filepath.Join(cacheDir, files[i].name)
			if rmErr := os.Remove(path); rmErr != nil {
				return pruned, fmt.Errorf("removing %s: %w", files[i].name, rmErr)
			}
		}
		pruned = append(pruned, files[i].name)
	}

	return pruned, nil
}

// isPackageCache matches the package_<name>_<slug>.json naming scheme.
func isPackageCache(name string) bool {
	return strings.HasPrefix(name, "package_") && strings.HasSuffix(name, ".json")
}
