// workspace.go extracts the user's workspace into a fresh index on every
// run. The workspace index is never persisted.
package pipeline

import (
	"context"
	"fmt"

	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/index"
)

// WorkspaceResult reports what the workspace pipeline did.
type WorkspaceResult struct {
	Index       *index.Index
	FilesParsed int

	// Modules lists the module names defined anywhere in the workspace,
	// used to suppress unresolved-import false positives.
	Modules map[string]bool
}

// WorkspacePipeline indexes the workspace sources.
type WorkspacePipeline struct {
	// Root is the workspace directory.
	Root string

	// Base optionally supplies the stdlib+package index. Its declared
	// return types feed the analyzers' assignment type inference, so a
	// workspace variable assigned from a Base or package call carries
	// the callee's return type as its hint.
	Base *index.Index

	Logger *vlog.Logger
}

// Run discovers, parses and analyzes all workspace files into a fresh
// index.
func (p *WorkspacePipeline) Run(ctx context.Context) (*WorkspaceResult, error) {
	if p.Root == "" {
		return nil, fmt.Errorf("workspace pipeline: no root directory")
	}

	files, err := discoverJuliaFiles(p.Root)
	if err != nil {
		return nil, fmt.Errorf("discovering workspace files: %w", err)
	}

	ix := index.New()
	parsed := analyzeFiles(ctx, files, "Main", p.Base, ix, p.Logger)

	modules := map[string]bool{}
	for _, name := range ix.SymbolNames() {
		for _, sym := range ix.SymbolsByName(name) {
			if sym.Kind == index.KindModule {
				modules[sym.Name] = true
			}
		}
	}

	if p.Logger != nil {
		symbols, signatures, _ := ix.Stats()
		_ = p.Logger.Append(vlog.LogEvent{
			Event:    vlog.EventPipelineComplete,
			Pipeline: "workspace",
			Files:    parsed,
			Symbols:  symbols,
			Data:     map[string]interface{}{"signatures": signatures},
		})
	}

	return &WorkspaceResult{Index: ix, FilesParsed: parsed, Modules: modules}, nil
}
