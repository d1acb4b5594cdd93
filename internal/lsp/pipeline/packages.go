// packages.go extracts each direct dependency into a per-package cached
// index and merges them all, promoting submodule functions at the end.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/project"
)

// PackageResult reports what the package pipeline did.
type PackageResult struct {
	Index *index.Index

	// PackagesParsed counts packages that were re-extracted.
	PackagesParsed int

	// PackagesFromCache counts packages served from a valid cache file.
	PackagesFromCache int

	// Skipped lists packages that could not be indexed at all.
	Skipped []string
}

// PackagePipeline indexes the project's direct dependencies.
type PackagePipeline struct {
	// CacheDir holds the per-package cache files.
	CacheDir string

	Logger *vlog.Logger
}

// cacheFileFor names a package's cache file from its slug, so identical
// content shares cache files across machines and changed content
// invalidates automatically.
func (p *PackagePipeline) cacheFileFor(name, slug string) string {
	safe := filepath.Base(name) // no separators in package names
	return filepath.Join(p.CacheDir, fmt.Sprintf("package_%s_%s.json", safe, slug))
}

// Run indexes every resolvable direct dependency of the project and
// merges the results into one Index. Per-package failures are logged and
// the package is skipped.
func (p *PackagePipeline) Run(ctx context.Context, proj *project.Context) (*PackageResult, error) {
	if proj == nil {
		return nil, fmt.Errorf("package pipeline: no project context")
	}

	merged := index.New()
	result := &PackageResult{Index: merged}

	for _, name := range proj.DirectDependencies() {
		pkgPath, ok := proj.PackagePaths[name]
		if !ok {
			result.Skipped = append(result.Skipped, name)
			logSkip(p.Logger, name, fmt.Errorf("package path not resolved"))
			continue
		}

		pkgIndex, fromCache, err := p.indexPackage(ctx, proj, name, pkgPath)
		if err != nil {
			result.Skipped = append(result.Skipped, name)
			logSkip(p.Logger, name, err)
			continue
		}

		if fromCache {
			result.PackagesFromCache++
		} else {
			result.PackagesParsed++
		}
		merged.Merge(pkgIndex)
	}

	merged.PromoteSubmoduleFunctions()
	return result, nil
}

// indexPackage loads one package from cache or re-extracts it. The cache
// is valid iff its mtime is not older than the newest .jl under src/.
func (p *PackagePipeline) indexPackage(ctx context.Context, proj *project.Context, name, pkgPath string) (*index.Index, bool, error) {
	slug := p.slugFor(proj, name)

	var cachePath string
	if slug != "" {
		cachePath = p.cacheFileFor(name, slug)
		if p.cacheValid(cachePath, pkgPath) {
			if ix, err := index.Load(cachePath); err == nil {
				return ix, true, nil
			}
			// Unreadable cache: rebuild below.
			if p.Logger != nil {
				_ = p.Logger.Append(vlog.LogEvent{Event: vlog.EventCacheRebuild, Pipeline: "package", Package: name})
			}
		}
	}

	srcDir := filepath.Join(pkgPath, "src")
	if _, err := os.Stat(srcDir); err != nil {
		srcDir = pkgPath
	}
	files, err := discoverJuliaFiles(srcDir)
	if err != nil {
		return nil, false, fmt.Errorf("discovering %s sources: %w", name, err)
	}
	if len(files) == 0 {
		return nil, false, fmt.Errorf("no sources under %s", srcDir)
	}

	ix := index.New()
	parsed := analyzeFiles(ctx, files, name, nil, ix, p.Logger)
	if parsed == 0 {
		return nil, false, fmt.Errorf("no file of %s could be analyzed", name)
	}

	if cachePath != "" {
		if err := ix.Save(cachePath); err != nil {
			logSkip(p.Logger, cachePath, err)
		}
	}

	return ix, false, nil
}

// slugFor computes the package slug from manifest uuid + content hash.
func (p *PackagePipeline) slugFor(proj *project.Context, name string) string {
	entry, ok := proj.Manifest[name]
	if !ok || entry.UUID == "" || entry.GitTreeSHA1 == "" {
		return ""
	}
	slug, err := project.ComputeSlug(entry.UUID, entry.GitTreeSHA1)
	if err != nil {
		return ""
	}
	return slug
}

// cacheValid reports whether the cache file is at least as new as every
// source file under the package's src/ directory.
func (p *PackagePipeline) cacheValid(cachePath, pkgPath string) bool {
	info, err := os.Stat(cachePath)
	if err != nil {
		return false
	}

	srcDir := filepath.Join(pkgPath, "src")
	if _, err := os.Stat(srcDir); err != nil {
		srcDir = pkgPath
	}
	newest, found := newestSourceMtime(srcDir)
	if !found {
		return true
	}
	return !info.ModTime().Before(newest)
}
