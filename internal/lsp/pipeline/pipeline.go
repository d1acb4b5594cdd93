// Package pipeline implements the three extraction pipelines feeding the
// Index: standard library, package dependencies and workspace. They all
// share the same shape: discover -> parse -> analyze -> merge ->
// (persist). A failure on one file or package is logged and skipped;
// a pipeline succeeds when it reaches the final merge.
package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/analyze"
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// skipDirs are never descended into during discovery.
var skipDirs = map[string]bool{
	".git": true, ".vesper": true, "node_modules": true, "test": true, "docs": true,
}

// discoverJuliaFiles returns every .jl file under root, sorted by walk
// order. Hidden directories and test/doc trees are skipped.
func discoverJuliaFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".jl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// analyzeFiles parses and analyzes every file into target. base feeds
// return-type inference and may be nil. Per-file failures are logged
// and skipped. Returns how many files were parsed.
func analyzeFiles(ctx context.Context, files []string, defaultModule string, base, target *index.Index, logger *vlog.Logger) int {
	parser := parse.NewParser()
	parsed := 0

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logSkip(logger, path, err)
			continue
		}
		item, err := parser.Parse(ctx, path, string(data))
		if err != nil {
			logSkip(logger, path, err)
			continue
		}
		result := analyze.AnalyzeWithBase(item, defaultModule, base)
		target.MergeFile(fileURI(path), result)
		parsed++
	}

	return parsed
}

// fileURI converts a path to the file URI keys the Index uses.
func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

func logSkip(logger *vlog.Logger, path string, err error) {
	if logger == nil {
		return
	}
	_ = logger.Append(vlog.LogEvent{
		Event: vlog.EventPipelineSkipped,
		Path:  path,
		Error: err.Error(),
	})
}

// newestSourceMtime returns the most recent modification time of any .jl
// file under dir.
func newestSourceMtime(dir string) (time.Time, bool) {
	var newest time.Time
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".jl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
		return nil
	})
	return newest, found
}
