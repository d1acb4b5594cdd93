package analyze

import (
	"context"
	"testing"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

func analyzeCode(t *testing.T, code string) *index.AnalysisResult {
	t.Helper()
	parser := parse.NewParser()
	item, err := parser.Parse(context.Background(), "file:///test.jl", code)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return Analyze(item, "TestMod")
}

func findSymbol(result *index.AnalysisResult, name string, kind index.SymbolKind) *index.Symbol {
	for i := range result.Symbols {
		if result.Symbols[i].Name == name && result.Symbols[i].Kind == kind {
			return &result.Symbols[i]
		}
	}
	return nil
}

func TestAnalyzeFunction(t *testing.T) {
	result := analyzeCode(t, "function add(a, b)\n    a + b\nend\n")

	sym := findSymbol(result, "add", index.KindFunction)
	if sym == nil {
		t.Fatalf("function symbol not extracted: %+v", result.Symbols)
	}

	if len(result.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(result.Signatures))
	}
	sig := result.Signatures[0]
	if sig.Module != "TestMod" || sig.Name != "add" {
		t.Errorf("unexpected signature: %+v", sig)
	}
	if len(sig.Parameters) != 2 || sig.Parameters[0].Name != "a" || sig.Parameters[1].Name != "b" {
		t.Errorf("unexpected parameters: %+v", sig.Parameters)
	}
}

func TestAnalyzeTypedParameters(t *testing.T) {
	result := analyzeCode(t, "function scale(x::Float64, factor::Int)\n    x * factor\nend\n")

	if len(result.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(result.Signatures))
	}
	params := result.Signatures[0].Parameters
	if len(params) != 2 {
		t.Fatalf("expected 2 parameters, got %+v", params)
	}
	if params[0].Name != "x" || params[0].Type != "Float64" {
		t.Errorf("unexpected first parameter: %+v", params[0])
	}
	if params[1].Name != "factor" || params[1].Type != "Int" {
		t.Errorf("unexpected second parameter: %+v", params[1])
	}
}

func TestParametersBecomeScopedVariables(t *testing.T) {
	result := analyzeCode(t, "function f(x)\n    x\nend\n")

	param := findSymbol(result, "x", index.KindVariable)
	if param == nil {
		t.Fatal("parameter not recorded as variable")
	}
	if param.ScopeID == 0 {
		t.Error("parameter should live inside the function scope, not the file scope")
	}
}

func TestAnalyzeDocComment(t *testing.T) {
	code := "\"\"\"\n    add(a, b)\n\nAdd two numbers.\n\"\"\"\nfunction add(a, b)\n    a + b\nend\n"
	result := analyzeCode(t, code)

	sym := findSymbol(result, "add", index.KindFunction)
	if sym == nil {
		t.Fatal("function symbol not extracted")
	}
	if sym.Doc == "" {
		t.Error("doc comment not extracted")
	}
}

func TestAnalyzeStruct(t *testing.T) {
	result := analyzeCode(t, "struct Point\n    x::Float64\n    y::Float64\nend\n")

	if findSymbol(result, "Point", index.KindType) == nil {
		t.Fatalf("struct symbol not extracted: %+v", result.Symbols)
	}
	if len(result.Types) != 1 {
		t.Fatalf("expected 1 type entry, got %d", len(result.Types))
	}
	entry := result.Types[0]
	if entry.Kind != index.TypeConcrete {
		t.Errorf("unexpected type kind: %+v", entry)
	}
	if len(entry.Fields) != 2 {
		t.Errorf("expected fields x and y, got %v", entry.Fields)
	}
}

func TestAnalyzeAbstractType(t *testing.T) {
	result := analyzeCode(t, "abstract type Shape end\n")

	if len(result.Types) != 1 || result.Types[0].Kind != index.TypeAbstract {
		t.Errorf("abstract type not extracted: %+v", result.Types)
	}
}

func TestAnalyzeModuleAndExports(t *testing.T) {
	code := "module Geometry\nexport area, perimeter\nfunction area(r)\n    3.14 * r^2\nend\nfunction perimeter(r)\n    2 * 3.14 * r\nend\nend\n"
	result := analyzeCode(t, code)

	if findSymbol(result, "Geometry", index.KindModule) == nil {
		t.Fatalf("module symbol not extracted: %+v", result.Symbols)
	}

	if !result.Exports.IsExported("Geometry", "area") {
		t.Errorf("area not exported: %+v", result.Exports)
	}
	if !result.Exports.IsExported("Geometry", "perimeter") {
		t.Errorf("perimeter not exported: %+v", result.Exports)
	}

	// Signatures carry the module that encloses them.
	for _, sig := range result.Signatures {
		if sig.Module != "Geometry" {
			t.Errorf("signature not attributed to module: %+v", sig)
		}
	}
}

func TestAnalyzeVariableAssignment(t *testing.T) {
	result := analyzeCode(t, "x = 41\n")

	sym := findSymbol(result, "x", index.KindVariable)
	if sym == nil {
		t.Fatalf("variable not extracted: %+v", result.Symbols)
	}
	if sym.ScopeID != 0 {
		t.Errorf("top-level variable should be in file scope, got %d", sym.ScopeID)
	}
}

func TestAnalyzeConst(t *testing.T) {
	result := analyzeCode(t, "const GRAVITY = 9.81\n")

	if findSymbol(result, "GRAVITY", index.KindConstant) == nil {
		t.Errorf("constant not extracted: %+v", result.Symbols)
	}
}

func TestAnalyzeMultipleOverloads(t *testing.T) {
	code := "function f(x::Int)\n    x\nend\nfunction f(x::String)\n    x\nend\n"
	result := analyzeCode(t, code)

	count := 0
	for _, sig := range result.Signatures {
		if sig.Name == "f" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 overloads, got %d", count)
	}
}

func TestAnalyzeWithBaseInfersReturnType(t *testing.T) {
	base := index.New()
	base.MergeFile("file:///base/stats.jl", &index.AnalysisResult{
		Signatures: []index.Signature{{
			Module:     "Statistics",
			Name:       "mean",
			Parameters: []index.Parameter{{Name: "itr"}},
			ReturnType: "Float64",
		}},
	})

	parser := parse.NewParser()
	item, err := parser.Parse(context.Background(), "file:///test.jl", "m = mean([1, 2, 3])\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	result := AnalyzeWithBase(item, "Main", base)

	sym := findSymbol(result, "m", index.KindVariable)
	if sym == nil {
		t.Fatalf("variable not extracted: %+v", result.Symbols)
	}
	if sym.TypeHint != "Float64" {
		t.Errorf("expected inferred Float64, got %q", sym.TypeHint)
	}
}

func TestAnalyzeInfersLiteralTypes(t *testing.T) {
	result := analyzeCode(t, "n = 42\ns = \"text\"\n")

	if sym := findSymbol(result, "n", index.KindVariable); sym == nil || sym.TypeHint != "Int" {
		t.Errorf("integer literal hint missing: %+v", sym)
	}
	if sym := findSymbol(result, "s", index.KindVariable); sym == nil || sym.TypeHint != "String" {
		t.Errorf("string literal hint missing: %+v", sym)
	}
}

func TestReferencesIncludeDefinitionFlag(t *testing.T) {
	result := analyzeCode(t, "function f(x)\n    x\nend\nf(1)\n")

	var defs, uses int
	for _, ref := range result.References {
		if ref.Name != "f" {
			continue
		}
		if ref.IsDefinition {
			defs++
		} else {
			uses++
		}
	}
	if defs != 1 {
		t.Errorf("expected 1 defining reference, got %d", defs)
	}
	if uses < 1 {
		t.Errorf("expected at least 1 use, got %d", uses)
	}
}

func TestScopeTreeNesting(t *testing.T) {
	code := "module M\nfunction f(x)\n    for i in 1:10\n        x += i\n    end\nend\nend\n"
	result := analyzeCode(t, code)

	if result.Scopes == nil {
		t.Fatal("no scope tree")
	}
	// file -> module -> function -> for: at least three nested levels.
	depth := 0
	node := result.Scopes
	for len(node.Children) > 0 {
		node = node.Children[0]
		depth++
	}
	if depth < 3 {
		t.Errorf("expected at least 3 nested scopes, got %d", depth)
	}
}
