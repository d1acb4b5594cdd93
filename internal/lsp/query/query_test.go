package query

import (
	"testing"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
)

func lineRange(startLine, endLine uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: startLine},
		End:   protocol.Position{Line: endLine, Character: 80},
	}
}

// buildIndex models a file with a module-level x and a function-local x:
//
//	x = 1              (scope 0)
//	function f()       (scope 1: lines 2-5)
//	    x = 2
//	end
func buildIndex() *index.Index {
	ix := index.New()
	ix.MergeFile("file:///a.jl", &index.AnalysisResult{
		Symbols: []index.Symbol{
			{Name: "x", Kind: index.KindVariable, Range: lineRange(0, 0), ScopeID: 0},
			{Name: "x", Kind: index.KindVariable, Range: lineRange(3, 3), ScopeID: 1},
			{Name: "f", Kind: index.KindFunction, Range: lineRange(2, 2), ScopeID: 0},
		},
		Scopes: &index.ScopeNode{
			ID: 0, Range: lineRange(0, 10),
			Children: []*index.ScopeNode{
				{ID: 1, Range: lineRange(2, 5)},
			},
		},
	})
	return ix
}

func TestResolvePrefersDeepestScope(t *testing.T) {
	e := New(buildIndex())

	// Inside the function: the local x wins.
	sym, ok := e.ResolveSymbolAt("x", "file:///a.jl", protocol.Position{Line: 4, Character: 2})
	if !ok {
		t.Fatal("x not resolved")
	}
	if sym.ScopeID != 1 {
		t.Errorf("expected function-local x (scope 1), got scope %d", sym.ScopeID)
	}
}

func TestResolveFallsBackToParentScope(t *testing.T) {
	e := New(buildIndex())

	// Outside the function: the module-level x wins.
	sym, ok := e.ResolveSymbolAt("x", "file:///a.jl", protocol.Position{Line: 8, Character: 0})
	if !ok {
		t.Fatal("x not resolved")
	}
	if sym.ScopeID != 0 {
		t.Errorf("expected module-level x (scope 0), got scope %d", sym.ScopeID)
	}
}

func TestResolveOtherFileFallback(t *testing.T) {
	e := New(buildIndex())

	sym, ok := e.ResolveSymbolAt("f", "file:///other.jl", protocol.Position{})
	if !ok {
		t.Fatal("f not resolved from another file")
	}
	if sym.Name != "f" {
		t.Errorf("unexpected symbol: %+v", sym)
	}
}

func TestResolveUnknown(t *testing.T) {
	e := New(buildIndex())
	if _, ok := e.ResolveSymbolAt("nope", "file:///a.jl", protocol.Position{}); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestFindByPrefix(t *testing.T) {
	ix := index.New()
	ix.MergeFile("file:///a.jl", &index.AnalysisResult{
		Symbols: []index.Symbol{
			{Name: "print_matrix", Kind: index.KindFunction, Range: lineRange(0, 0)},
			{Name: "println_fast", Kind: index.KindFunction, Range: lineRange(1, 1)},
			{Name: "parse", Kind: index.KindFunction, Range: lineRange(2, 2)},
		},
	})
	e := New(ix)

	got := e.FindByPrefix("print")
	if len(got) != 2 {
		t.Errorf("expected 2 matches, got %+v", got)
	}
}

func TestFindAtPosition(t *testing.T) {
	e := New(buildIndex())

	got := e.FindAtPosition("file:///a.jl", protocol.Position{Line: 2, Character: 5})
	if len(got) != 1 || got[0].Name != "f" {
		t.Errorf("expected f at line 2, got %+v", got)
	}
}
