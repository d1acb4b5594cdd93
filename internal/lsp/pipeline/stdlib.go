// stdlib.go extracts signatures, types and exports from the standard
// library shipped with the interpreter, cached as base_index.json.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/index"
)

// StdlibResult reports what the stdlib pipeline did.
type StdlibResult struct {
	Index       *index.Index
	FilesParsed int
	CacheHit    bool
}

// StdlibPipeline indexes the interpreter's Base and stdlib sources.
type StdlibPipeline struct {
	// Executable is the interpreter binary; sources are discovered
	// relative to its installation prefix.
	Executable string

	// DataDir holds base_index.json.
	DataDir string

	// MaxCacheAge invalidates the cache; zero means 7 days.
	MaxCacheAge time.Duration

	Logger *vlog.Logger
}

// defaultStdlibCacheAge is the rebuild threshold for base_index.json.
const defaultStdlibCacheAge = 7 * 24 * time.Hour

// cachePath returns the base_index.json location.
func (p *StdlibPipeline) cachePath() string {
	return filepath.Join(p.DataDir, "base_index.json")
}

// Run loads the cached stdlib index when it is younger than the max age,
// and otherwise discovers, parses and analyzes the stdlib sources and
// persists the result.
func (p *StdlibPipeline) Run(ctx context.Context) (*StdlibResult, error) {
	maxAge := p.MaxCacheAge
	if maxAge <= 0 {
		maxAge = defaultStdlibCacheAge
	}

	cache := p.cachePath()
	if info, err := os.Stat(cache); err == nil && time.Since(info.ModTime()) <= maxAge {
		if ix, err := index.Load(cache); err == nil {
			p.logEvent(vlog.EventCacheHit, cache)
			return &StdlibResult{Index: ix, CacheHit: true}, nil
		}
		// Unreadable cache falls back to rebuild.
		p.logEvent(vlog.EventCacheRebuild, cache)
	}

	ix := index.New()
	parsed := 0

	baseDir, stdlibDirs, err := p.discoverSources()
	if err != nil {
		return nil, err
	}

	if baseDir != "" {
		files, err := discoverJuliaFiles(baseDir)
		if err == nil {
			parsed += analyzeFiles(ctx, files, "Base", nil, ix, p.Logger)
		}
	}
	for _, dir := range stdlibDirs {
		module := filepath.Base(dir)
		files, err := discoverJuliaFiles(dir)
		if err != nil {
			logSkip(p.Logger, dir, err)
			continue
		}
		parsed += analyzeFiles(ctx, files, module, nil, ix, p.Logger)
	}

	if err := ix.Save(cache); err != nil {
		// Persisting is best-effort: the in-memory index is still good.
		logSkip(p.Logger, cache, err)
	}

	return &StdlibResult{Index: ix, FilesParsed: parsed}, nil
}

// discoverSources locates the base/ directory and the per-package stdlib
// directories relative to the interpreter prefix.
func (p *StdlibPipeline) discoverSources() (string, []string, error) {
	if p.Executable == "" {
		return "", nil, fmt.Errorf("stdlib pipeline: no interpreter executable")
	}

	prefix := filepath.Dir(filepath.Dir(p.Executable))
	share := filepath.Join(prefix, "share", "julia")

	baseDir := filepath.Join(share, "base")
	if _, err := os.Stat(baseDir); err != nil {
		baseDir = ""
	}

	var stdlibDirs []string
	stdlibRoot := filepath.Join(share, "stdlib")
	versions, err := os.ReadDir(stdlibRoot)
	if err == nil {
		for _, version := range versions {
			if !version.IsDir() {
				continue
			}
			packages, err := os.ReadDir(filepath.Join(stdlibRoot, version.Name()))
			if err != nil {
				continue
			}
			for _, pkg := range packages {
				if pkg.IsDir() {
					stdlibDirs = append(stdlibDirs, filepath.Join(stdlibRoot, version.Name(), pkg.Name()))
				}
			}
		}
	}

	if baseDir == "" && len(stdlibDirs) == 0 {
		return "", nil, fmt.Errorf("stdlib pipeline: no sources found under %s", share)
	}
	return baseDir, stdlibDirs, nil
}

func (p *StdlibPipeline) logEvent(event, path string) {
	if p.Logger == nil {
		return
	}
	_ = p.Logger.Append(vlog.LogEvent{Event: event, Pipeline: "stdlib", Path: path})
}
