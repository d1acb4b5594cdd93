// Package lsp hosts the embedded language server: it owns the Index,
// drives the extraction pipelines, tracks open documents and serves the
// editor queries. All Index mutation happens on this service.
package lsp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/events"
	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp/analyze"
	"github.com/vesper-sci/vesper/internal/lsp/diagnostics"
	"github.com/vesper-sci/vesper/internal/lsp/features"
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
	"github.com/vesper-sci/vesper/internal/lsp/pipeline"
	"github.com/vesper-sci/vesper/internal/project"
)

// Options configures the service.
type Options struct {
	WorkspaceRoot string
	DataDir       string // base_index.json
	CacheDir      string // per-package caches
	Executable    string // interpreter, for stdlib discovery
	DepotPath     string

	StdlibCacheMaxAge  time.Duration
	DiagnosticDebounce time.Duration
	IndexPackages      bool

	Registry features.RegistryLookup

	Bus    *events.Bus
	Logger *vlog.Logger
}

// Service is the embedded language server.
type Service struct {
	opts Options

	mu               sync.Mutex
	docs             map[string]*parse.Document
	combined         *index.Index
	feats            *features.Features
	proj             *project.Context
	workspaceModules map[string]bool

	cache   *diagnostics.Cache
	tracker *diagnostics.Tracker
}

// NewService creates a service with an empty index. Indexing starts when
// StartIndexing runs.
func NewService(opts Options) *Service {
	if opts.DiagnosticDebounce <= 0 {
		opts.DiagnosticDebounce = 300 * time.Millisecond
	}

	ix := index.New()
	return &Service{
		opts:             opts,
		docs:             map[string]*parse.Document{},
		combined:         ix,
		feats:            features.New(ix, opts.Registry),
		workspaceModules: map[string]bool{},
		cache:            diagnostics.NewCache(),
		tracker:          diagnostics.NewTracker(opts.DiagnosticDebounce),
	}
}

// StartIndexing runs the stdlib, package and workspace pipelines and
// merges their results into the service index. onReady is called once the
// merge finished (successfully or degraded); pipeline failures never
// abort indexing as a whole.
func (s *Service) StartIndexing(ctx context.Context, onReady func()) {
	go func() {
		if s.opts.Bus != nil {
			_ = s.opts.Bus.Emit(events.CategoryLsp, "server-started", map[string]any{})
		}
		s.emitStatus("indexing", "Indexing standard library")

		merged := index.New()

		stdlib := &pipeline.StdlibPipeline{
			Executable:  s.opts.Executable,
			DataDir:     s.opts.DataDir,
			MaxCacheAge: s.opts.StdlibCacheMaxAge,
			Logger:      s.opts.Logger,
		}
		if result, err := stdlib.Run(ctx); err == nil {
			merged.Merge(result.Index)
		} else {
			s.logPipelineError("stdlib", err)
		}

		s.emitStatus("indexing", "Indexing packages")

		proj, err := project.Load(s.opts.WorkspaceRoot, s.opts.DepotPath)
		if err != nil {
			s.logPipelineError("project", err)
		} else {
			s.setProject(proj)
			if s.opts.IndexPackages {
				packages := &pipeline.PackagePipeline{CacheDir: s.opts.CacheDir, Logger: s.opts.Logger}
				if result, err := packages.Run(ctx, proj); err == nil {
					merged.Merge(result.Index)
				} else {
					s.logPipelineError("package", err)
				}
			}
		}

		s.emitStatus("indexing", "Indexing workspace")

		workspace := &pipeline.WorkspacePipeline{Root: s.opts.WorkspaceRoot, Base: merged, Logger: s.opts.Logger}
		var modules map[string]bool
		if result, err := workspace.Run(ctx); err == nil {
			merged.Merge(result.Index)
			modules = result.Modules
		} else {
			s.logPipelineError("workspace", err)
		}

		s.install(merged, modules)
		s.emitStatus("ready", "")

		if onReady != nil {
			onReady()
		}
	}()
}

// ChangeWorkspace points the service at a new workspace root and
// re-runs indexing. Open documents are kept; the old workspace's indexed
// files are replaced wholesale by the new merge.
func (s *Service) ChangeWorkspace(ctx context.Context, root string, onReady func()) {
	s.mu.Lock()
	s.opts.WorkspaceRoot = root
	s.proj = nil
	s.mu.Unlock()

	s.StartIndexing(ctx, onReady)
}

// install swaps in the freshly merged index.
func (s *Service) install(merged *index.Index, workspaceModules map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.combined = merged
	s.feats = features.New(merged, s.opts.Registry)
	if workspaceModules != nil {
		s.workspaceModules = workspaceModules
	}
}

func (s *Service) setProject(proj *project.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proj = proj
}

// DidOpen registers an open document and indexes its contents.
func (s *Service) DidOpen(uri, text string, version int32) error {
	doc, err := parse.NewDocument(uri, text, version)
	if err != nil {
		return fmt.Errorf("opening %s: %w", uri, err)
	}

	s.mu.Lock()
	s.docs[uri] = doc
	combined := s.combined
	s.mu.Unlock()

	combined.MergeFile(uri, analyze.AnalyzeWithBase(doc.Parsed(), "Main", combined))
	s.tracker.Touch(uri)
	return nil
}

// DidChange applies an edit: incremental reparse plus index update.
func (s *Service) DidChange(uri, text string, version int32) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	combined := s.combined
	s.mu.Unlock()

	if !ok {
		return s.DidOpen(uri, text, version)
	}
	if err := doc.Update(text, version); err != nil {
		return fmt.Errorf("updating %s: %w", uri, err)
	}

	combined.MergeFile(uri, analyze.AnalyzeWithBase(doc.Parsed(), "Main", combined))
	s.tracker.Touch(uri)
	return nil
}

// DidClose forgets a document. Its indexed contents stay until the next
// workspace pipeline run.
func (s *Service) DidClose(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
	s.cache.Drop(uri)
}

func (s *Service) document(uri string) (*parse.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *Service) currentFeatures() *features.Features {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feats
}

// Hover serves a hover query for an open document.
func (s *Service) Hover(uri string, pos protocol.Position) *protocol.Hover {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return s.currentFeatures().Hover(doc.Text, uri, pos)
}

// Completion serves completion items at the cursor.
func (s *Service) Completion(uri string, pos protocol.Position) []protocol.CompletionItem {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return s.currentFeatures().Completion(doc.Text, pos)
}

// Definition serves go-to-definition.
func (s *Service) Definition(uri string, pos protocol.Position) []protocol.Location {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return s.currentFeatures().Definition(doc.Text, uri, pos)
}

// References serves find-references.
func (s *Service) References(uri string, pos protocol.Position, includeDeclaration bool) []protocol.Location {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return s.currentFeatures().References(doc.Text, uri, pos, includeDeclaration)
}

// Diagnostics serves diagnostics for (uri, version): from cache on an
// exact version hit; the latest cached result while edits are being
// debounced; otherwise recomputed.
func (s *Service) Diagnostics(uri string) []protocol.Diagnostic {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}

	if diags, hit := s.cache.Get(uri, doc.Version); hit {
		return diags
	}
	if !s.tracker.ShouldRecompute(uri) {
		if diags, ok := s.cache.Latest(uri); ok {
			return diags
		}
	}

	s.mu.Lock()
	combined := s.combined
	semanticCtx := &diagnostics.SemanticContext{
		Index:            combined,
		WorkspaceModules: s.workspaceModules,
		InDepot:          s.depotChecker(),
	}
	s.mu.Unlock()

	item := doc.Parsed()
	analysis := analyze.AnalyzeWithBase(item, "Main", combined)

	diags := diagnostics.Syntactic(item)
	diags = append(diags, diagnostics.Semantic(item, analysis, semanticCtx)...)

	s.cache.Put(uri, doc.Version, diags)
	return diags
}

// CodeActions serves quick fixes for the current diagnostics in range.
func (s *Service) CodeActions(uri string, rng protocol.Range) []protocol.CodeAction {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	diags := s.Diagnostics(uri)
	return s.currentFeatures().CodeActions(doc.Text, uri, rng, diags)
}

// depotChecker reports installed-but-unindexed packages. Called with the
// service lock held.
func (s *Service) depotChecker() func(string) bool {
	proj := s.proj
	if proj == nil {
		return nil
	}
	return func(name string) bool {
		if proj.InManifest(name) {
			return true
		}
		_, resolved := proj.PackagePaths[name]
		return resolved
	}
}

func (s *Service) emitStatus(status, message string) {
	if s.opts.Bus == nil {
		return
	}
	payload := map[string]any{"status": status}
	if message != "" {
		payload["message"] = message
	}
	_ = s.opts.Bus.Emit(events.CategoryLsp, "status", payload)
}

func (s *Service) logPipelineError(name string, err error) {
	if s.opts.Logger != nil {
		_ = s.opts.Logger.Append(vlog.LogEvent{
			Event:    vlog.EventPipelineSkipped,
			Pipeline: name,
			Error:    err.Error(),
		})
	}
	if s.opts.Bus != nil {
		_ = s.opts.Bus.Emit(events.CategoryLsp, "server-error", map[string]any{
			"stage": name, "message": err.Error(),
		})
	}
	s.emitStatus("degraded", fmt.Sprintf("%s indexing failed", name))
}
