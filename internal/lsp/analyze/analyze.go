// Package analyze extracts symbols, signatures, types, exports,
// references and scope trees from parsed Julia files. Each analyzer
// consumes a ParsedItem and contributes one slice of the AnalysisResult.
package analyze

import (
	"strings"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// Node types of the Julia grammar the analyzers care about. Older grammar
// revisions use a few alternate spellings; the helpers below accept both.
const (
	nodeFunction      = "function_definition"
	nodeShortFunction = "short_function_definition"
	nodeMacro         = "macro_definition"
	nodeStruct        = "struct_definition"
	nodeAbstract      = "abstract_definition"
	nodePrimitive     = "primitive_definition"
	nodeModule        = "module_definition"
	nodeAssignment    = "assignment"
	nodeConst         = "const_statement"
	nodeExport        = "export_statement"
	nodeUsing         = "using_statement"
	nodeImport        = "import_statement"
	nodeIdentifier    = "identifier"
	nodeCall          = "call_expression"
	nodeSignature     = "signature"
	nodeTyped         = "typed_expression"
	nodeParameters    = "parameter_list"
	nodeArguments     = "argument_list"
	nodeField         = "field_expression"
	nodeStringLiteral = "string_literal"
)

// Analyze runs every analyzer over the parsed file. defaultModule names
// the module that owns top-level definitions when the file declares none
// (typically the package name, or "Main" for workspace scratch files).
func Analyze(item *parse.ParsedItem, defaultModule string) *index.AnalysisResult {
	return AnalyzeWithBase(item, defaultModule, nil)
}

// AnalyzeWithBase is Analyze plus type inference against a base index:
// a variable assigned from a call whose callee has a declared return
// type in base (stdlib or package signatures) picks that type up as its
// hint. base may be nil.
func AnalyzeWithBase(item *parse.ParsedItem, defaultModule string, base *index.Index) *index.AnalysisResult {
	if defaultModule == "" {
		defaultModule = "Main"
	}

	scopes, scopeOf := buildScopes(item)

	result := &index.AnalysisResult{
		Exports: index.ExportSet{},
		Scopes:  scopes,
	}

	ctx := &fileContext{
		item:          item,
		defaultModule: defaultModule,
		scopeOf:       scopeOf,
		result:        result,
		base:          base,
	}

	root := item.Root()
	ctx.walkDefinitions(root)
	collectExports(root, defaultModule, result.Exports)
	collectReferences(root, result)

	return result
}

// fileContext carries shared state across the per-definition analyzers.
type fileContext struct {
	item          *parse.ParsedItem
	defaultModule string
	scopeOf       func(parse.Node) uint32
	result        *index.AnalysisResult

	// base supplies stdlib/package signatures for return-type inference;
	// nil outside the workspace pipeline.
	base *index.Index
}

// walkDefinitions visits definition nodes and dispatches per kind.
func (ctx *fileContext) walkDefinitions(root parse.Node) {
	root.Walk(func(node parse.Node) bool {
		switch node.Type() {
		case nodeFunction, nodeShortFunction:
			ctx.extractFunction(node)
		case nodeMacro:
			ctx.extractMacro(node)
		case nodeStruct:
			ctx.extractStruct(node)
		case nodeAbstract, nodePrimitive:
			ctx.extractAbstract(node)
		case nodeModule:
			ctx.extractModule(node)
		case nodeConst:
			ctx.extractConst(node)
		case nodeAssignment:
			ctx.extractAssignment(node)
		}
		return true
	})
}

// moduleFor returns the qualified module path owning the node: the
// enclosing module definitions joined by dots, or the default module when
// the node sits outside any module definition.
func (ctx *fileContext) moduleFor(node parse.Node) string {
	var parts []string
	for parent := node.Parent(); !parent.IsNull(); parent = parent.Parent() {
		if parent.Type() == nodeModule {
			if name, ok := moduleName(parent); ok {
				parts = append([]string{name}, parts...)
			}
		}
	}
	if len(parts) == 0 {
		return ctx.defaultModule
	}
	return strings.Join(parts, ".")
}

// moduleName extracts the name of a module_definition.
func moduleName(node parse.Node) (string, bool) {
	if name := node.ChildByField("name"); !name.IsNull() {
		return name.Text(), true
	}
	if ident, ok := node.FirstChildOfType(nodeIdentifier); ok {
		return ident.Text(), true
	}
	return "", false
}

// docCommentFor returns the text of a triple-quoted string literal
// immediately preceding the definition, with the quotes stripped.
func docCommentFor(node parse.Node, text string) string {
	parent := node.Parent()
	if parent.IsNull() {
		return ""
	}

	var prev parse.Node
	found := false
	for i := 0; i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Range() == node.Range() && child.Type() == node.Type() {
			found = true
			break
		}
		if child.IsNamed() {
			prev = child
		}
	}
	if !found || prev.IsNull() || prev.Type() != nodeStringLiteral {
		return ""
	}

	raw := prev.Text()
	if !strings.HasPrefix(raw, `"""`) {
		return ""
	}
	doc := strings.TrimPrefix(raw, `"""`)
	doc = strings.TrimSuffix(doc, `"""`)
	return strings.TrimSpace(doc)
}
