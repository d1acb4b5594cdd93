// index.go runs the extraction pipelines once and reports what they
// indexed. Useful for warming caches and debugging indexing problems.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesper-sci/vesper/internal/config"
	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/pipeline"
	"github.com/vesper-sci/vesper/internal/project"
)

var indexProjectDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run the stdlib, package and workspace pipelines once",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := indexProjectDir
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
		}
		return runIndex(dir)
	},
}

func init() {
	indexCmd.Flags().StringVarP(&indexProjectDir, "project", "p", "", "project directory (default: cwd)")
}

func runIndex(projectDir string) error {
	cfg, err := config.ReadConfig(projectDir)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	logger, err := vlog.NewLogger(projectDir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Close()

	ctx := context.Background()
	start := time.Now()

	executable := cfg.Interpreter.Executable
	if executable == "" {
		executable = "julia"
	}

	stdlib := &pipeline.StdlibPipeline{
		Executable:  executable,
		DataDir:     dataDir(),
		MaxCacheAge: time.Duration(cfg.Lsp.StdlibCacheMaxAgeDays) * 24 * time.Hour,
		Logger:      logger,
	}
	base := index.New()
	if result, err := stdlib.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: stdlib indexing failed: %v\n", err)
	} else if result.CacheHit {
		base.Merge(result.Index)
		fmt.Println("stdlib: cache hit")
	} else {
		base.Merge(result.Index)
		fmt.Printf("stdlib: %d files parsed\n", result.FilesParsed)
	}

	proj, err := project.Load(projectDir, depotPath(cfg))
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	packages := &pipeline.PackagePipeline{
		CacheDir: filepath.Join(dataDir(), "package_cache"),
		Logger:   logger,
	}
	if result, err := packages.Run(ctx, proj); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: package indexing failed: %v\n", err)
	} else {
		base.Merge(result.Index)
		fmt.Printf("packages: %d parsed, %d from cache, %d skipped\n",
			result.PackagesParsed, result.PackagesFromCache, len(result.Skipped))
	}

	workspace := &pipeline.WorkspacePipeline{Root: projectDir, Base: base, Logger: logger}
	result, err := workspace.Run(ctx)
	if err != nil {
		return fmt.Errorf("workspace indexing: %w", err)
	}

	symbols, signatures, types := result.Index.Stats()
	fmt.Printf("workspace: %d files, %d symbols, %d signatures, %d types in %s\n",
		result.FilesParsed, symbols, signatures, types, time.Since(start).Round(time.Millisecond))

	return nil
}
