package diagnostics

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/analyze"
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

func parseCode(t *testing.T, code string) *parse.ParsedItem {
	t.Helper()
	parser := parse.NewParser()
	item, err := parser.Parse(context.Background(), "file:///test.jl", code)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return item
}

func TestMissingEnd(t *testing.T) {
	item := parseCode(t, "function f()\n  1\n")

	diags := Syntactic(item)
	if len(diags) == 0 {
		t.Fatal("expected at least one diagnostic")
	}

	var found *protocol.Diagnostic
	for i := range diags {
		if strings.Contains(diags[i].Message, "Missing 'end'") {
			found = &diags[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no Missing 'end' diagnostic in %+v", diags)
	}
	if found.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("expected Error severity, got %v", found.Severity)
	}
	if found.Range.End.Line > found.Range.Start.Line {
		t.Errorf("diagnostic spans more than one line: %+v", found.Range)
	}
}

func TestAllSyntacticRangesAtMostOneLine(t *testing.T) {
	cases := []string{
		"function f()\n  1\n",
		"x = (1 + 2\n",
		"if true\n  1\n",
		"s = \"unclosed\n",
		"end\n",
	}
	for _, code := range cases {
		for _, d := range Syntactic(parseCode(t, code)) {
			if d.Range.End.Line > d.Range.Start.Line {
				t.Errorf("range spans multiple lines for %q: %+v", code, d.Range)
			}
		}
	}
}

func TestNoDiagnosticsOnValidCode(t *testing.T) {
	item := parseCode(t, "function f(x)\n    x + 1\nend\n")
	if diags := Syntactic(item); len(diags) != 0 {
		t.Errorf("unexpected diagnostics on valid code: %+v", diags)
	}
}

func TestUnresolvedImport(t *testing.T) {
	item := parseCode(t, "using Foo\n")

	ctx := &SemanticContext{Index: index.New()}
	diags := Semantic(item, &index.AnalysisResult{}, ctx)

	var found bool
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport && strings.Contains(d.Message, "Foo") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unresolved_import for Foo, got %+v", diags)
	}
}

func TestUnresolvedImportsFlaggedIndependently(t *testing.T) {
	item := parseCode(t, "using Foo, Bar\n")

	ctx := &SemanticContext{Index: index.New()}
	diags := Semantic(item, &index.AnalysisResult{}, ctx)

	names := map[string]bool{}
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport {
			for _, n := range []string{"Foo", "Bar"} {
				if strings.Contains(d.Message, "'"+n+"'") {
					names[n] = true
				}
			}
		}
	}
	if !names["Foo"] || !names["Bar"] {
		t.Errorf("expected independent diagnostics for Foo and Bar, got %+v", diags)
	}
}

func TestImportResolvedByIndex(t *testing.T) {
	item := parseCode(t, "using MyPkg\n")

	ix := index.New()
	ix.MergeFile("file:///pkg.jl", &index.AnalysisResult{
		Signatures: []index.Signature{{Module: "MyPkg", Name: "run"}},
	})

	diags := Semantic(item, &index.AnalysisResult{}, &SemanticContext{Index: ix})
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport {
			t.Errorf("indexed module flagged: %+v", d)
		}
	}
}

func TestImportResolvedByStdlib(t *testing.T) {
	item := parseCode(t, "using LinearAlgebra\n")

	diags := Semantic(item, &index.AnalysisResult{}, &SemanticContext{Index: index.New()})
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport {
			t.Errorf("stdlib module flagged: %+v", d)
		}
	}
}

func TestImportResolvedByDepotFallback(t *testing.T) {
	item := parseCode(t, "using Installed\n")

	ctx := &SemanticContext{
		Index:   index.New(),
		InDepot: func(name string) bool { return name == "Installed" },
	}
	diags := Semantic(item, &index.AnalysisResult{}, ctx)
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport {
			t.Errorf("depot-installed module flagged: %+v", d)
		}
	}
}

func TestImportResolvedByWorkspaceModule(t *testing.T) {
	item := parseCode(t, "using Internal\n")

	ctx := &SemanticContext{
		Index:            index.New(),
		WorkspaceModules: map[string]bool{"Internal": true},
	}
	diags := Semantic(item, &index.AnalysisResult{}, ctx)
	for _, d := range diags {
		if d.Code == CodeUnresolvedImport {
			t.Errorf("workspace module flagged: %+v", d)
		}
	}
}

func TestUndefinedIdentifierGuardedByDefinitions(t *testing.T) {
	code := "x = 1\ny = x + 1\n"
	item := parseCode(t, code)
	analysis := analyze.Analyze(item, "Main")

	diags := Semantic(item, analysis, &SemanticContext{Index: index.New()})
	for _, d := range diags {
		if d.Code == CodeUndefinedVariable {
			t.Errorf("defined variable flagged: %+v", d)
		}
	}
}

func TestCacheExactVersionMatch(t *testing.T) {
	cache := NewCache()
	diags := []protocol.Diagnostic{{Message: "x"}}

	cache.Put("file:///a.jl", 3, diags)

	if _, ok := cache.Get("file:///a.jl", 2); ok {
		t.Error("stale version must miss")
	}
	if got, ok := cache.Get("file:///a.jl", 3); !ok || len(got) != 1 {
		t.Error("exact version must hit")
	}
	if got, ok := cache.Latest("file:///a.jl"); !ok || len(got) != 1 {
		t.Error("Latest must serve most recent result")
	}
}

func TestTrackerDebounce(t *testing.T) {
	tr := NewTracker(100 * time.Millisecond)
	current := time.Unix(1000, 0)
	tr.now = func() time.Time { return current }

	tr.Touch("file:///a.jl")
	if tr.ShouldRecompute("file:///a.jl") {
		t.Error("immediately after an edit, recomputation should wait")
	}

	current = current.Add(200 * time.Millisecond)
	if !tr.ShouldRecompute("file:///a.jl") {
		t.Error("after the debounce interval, recomputation should run")
	}

	if !tr.ShouldRecompute("file:///untouched.jl") {
		t.Error("documents with no recorded edit should recompute")
	}
}
