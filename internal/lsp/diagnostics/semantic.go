// semantic.go checks imports and identifier usage against the Index.
package diagnostics

import (
	"strings"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// stdlibModules are always resolvable and never flagged.
var stdlibModules = map[string]bool{
	"Base": true, "Core": true, "Main": true,
	"LinearAlgebra": true, "Statistics": true, "Random": true,
	"Dates": true, "Printf": true, "Test": true, "Pkg": true,
	"REPL": true, "Markdown": true, "Logging": true, "Serialization": true,
	"Distributed": true, "SharedArrays": true, "SparseArrays": true,
	"DelimitedFiles": true, "InteractiveUtils": true, "Libdl": true,
	"LibGit2": true, "Mmap": true, "Profile": true, "Sockets": true,
	"TOML": true, "Tar": true, "UUIDs": true, "Unicode": true,
	"Base64": true, "CRC32c": true, "FileWatching": true, "Downloads": true,
}

// SemanticContext supplies the resolution sources the import and
// identifier checks consult.
type SemanticContext struct {
	// Index is the merged stdlib+package+workspace index. May be nil,
	// which disables semantic checks entirely.
	Index *index.Index

	// WorkspaceModules are modules defined anywhere in the workspace.
	WorkspaceModules map[string]bool

	// InDepot reports whether a package is installed under the depot even
	// if it was never indexed; used to suppress false positives.
	InDepot func(name string) bool
}

// Semantic runs the import and identifier checks. analysis is the current
// file's own analysis; ctx.Index provides cross-file knowledge.
func Semantic(item *parse.ParsedItem, analysis *index.AnalysisResult, ctx *SemanticContext) []protocol.Diagnostic {
	if ctx == nil || ctx.Index == nil {
		return nil
	}

	var diags []protocol.Diagnostic
	diags = append(diags, checkImports(item, ctx)...)
	diags = append(diags, checkIdentifiers(item, analysis, ctx)...)
	return diags
}

// checkImports flags `using M` / `import M` where M is not in the Index,
// not a standard library, not a workspace module, and not installed under
// the depot. Every module of a multi-module statement is checked
// independently.
func checkImports(item *parse.ParsedItem, ctx *SemanticContext) []protocol.Diagnostic {
	var diags []protocol.Diagnostic

	item.Root().Walk(func(node parse.Node) bool {
		if t := node.Type(); t != "using_statement" && t != "import_statement" {
			return true
		}

		for _, mod := range importedModules(node) {
			name := mod.name
			if stdlibModules[name] {
				continue
			}
			if ctx.Index.HasModule(name) {
				continue
			}
			if ctx.WorkspaceModules[name] {
				continue
			}
			if ctx.InDepot != nil && ctx.InDepot(name) {
				continue
			}

			diags = append(diags, protocol.Diagnostic{
				Range:    mod.rng,
				Severity: protocol.DiagnosticSeverityError,
				Code:     CodeUnresolvedImport,
				Source:   diagnosticSource,
				Message:  "Package '" + name + "' could not be resolved. Add it to the project or check the spelling.",
			})
		}
		return false
	})

	return diags
}

// importedModule is one module named by a using/import statement.
type importedModule struct {
	name string
	rng  protocol.Range
}

// importedModules extracts every module a statement names. For qualified
// paths (A.B.C) only the root package A decides resolvability; selective
// imports (using A: f) contribute only A.
func importedModules(stmt parse.Node) []importedModule {
	var out []importedModule
	seen := map[string]bool{}

	add := func(node parse.Node) {
		name := node.Text()
		if name == "" || name == "using" || name == "import" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, importedModule{name: name, rng: node.Range()})
	}

	for _, child := range stmt.NamedChildren() {
		switch child.Type() {
		case nodeIdentifierType:
			add(child)
		case "scoped_identifier", "field_expression":
			// Qualified path: the root identifier is the package.
			if root, ok := firstIdentifier(child); ok {
				add(root)
			}
		case "selected_import", "import_list":
			// using A: f, g. Only A itself is an import.
			if len(child.NamedChildren()) > 0 {
				first := child.NamedChildren()[0]
				if first.Type() == nodeIdentifierType {
					add(first)
				} else if root, ok := firstIdentifier(first); ok {
					add(root)
				}
			}
		case "import_alias":
			if len(child.NamedChildren()) > 0 {
				if root, ok := firstIdentifier(child.NamedChildren()[0]); ok {
					add(root)
				}
			}
		}
	}

	return out
}

const nodeIdentifierType = "identifier"

func firstIdentifier(node parse.Node) (parse.Node, bool) {
	if node.Type() == nodeIdentifierType {
		return node, true
	}
	for _, child := range node.NamedChildren() {
		if found, ok := firstIdentifier(child); ok {
			return found, true
		}
	}
	return parse.Node{}, false
}

// builtinIdentifiers are names that exist in every Julia session.
var builtinIdentifiers = map[string]bool{
	"println": true, "print": true, "push!": true, "pop!": true,
	"length": true, "size": true, "zeros": true, "ones": true,
	"typeof": true, "string": true, "parse": true, "sum": true,
	"map": true, "filter": true, "collect": true, "range": true,
	"abs": true, "min": true, "max": true, "sqrt": true, "exp": true,
	"log": true, "sin": true, "cos": true, "rand": true, "error": true,
	"throw": true, "true": true, "false": true, "nothing": true,
	"missing": true, "undef": true, "include": true, "cd": true,
	"pi": true, "im": true, "Inf": true, "NaN": true, "end": true,
}

// checkIdentifiers flags identifiers with no visible definition. The
// check is guarded by everything we know: file-local definitions,
// imported symbols, stdlib names and function parameters. When in doubt
// it stays silent.
func checkIdentifiers(item *parse.ParsedItem, analysis *index.AnalysisResult, ctx *SemanticContext) []protocol.Diagnostic {
	if analysis == nil {
		return nil
	}

	defined := map[string]bool{}
	for _, sym := range analysis.Symbols {
		defined[sym.Name] = true
		defined[strings.TrimPrefix(sym.Name, "@")] = true
	}
	collectLocalBindings(item.Root(), defined)

	imported := importedSymbolSet(item, ctx)

	var diags []protocol.Diagnostic
	item.Root().Walk(func(node parse.Node) bool {
		switch node.Type() {
		case "using_statement", "import_statement", "field_expression", "scoped_identifier":
			// Names inside imports and qualified access are not plain uses.
			return false
		}
		if node.Type() != nodeIdentifierType {
			return true
		}

		name := node.Text()
		if name == "" || defined[name] || builtinIdentifiers[name] || imported[name] {
			return true
		}
		if stdlibModules[name] || ctx.WorkspaceModules[name] {
			return true
		}
		if isUppercaseType(name) {
			// Type positions resolve through Base far too often to flag.
			return true
		}
		if len(ctx.Index.SymbolsByName(name)) > 0 || len(ctx.Index.Signatures("Base", name)) > 0 {
			return true
		}

		diags = append(diags, protocol.Diagnostic{
			Range:    node.Range(),
			Severity: protocol.DiagnosticSeverityWarning,
			Code:     CodeUndefinedVariable,
			Source:   diagnosticSource,
			Message:  "'" + name + "' is not defined in this scope.",
		})
		return true
	})

	return diags
}

// collectLocalBindings adds binding forms the symbol analyzer does not
// model as symbols: for-loop variables, let bindings, do-block arguments
// and destructuring assignment targets.
func collectLocalBindings(root parse.Node, defined map[string]bool) {
	root.Walk(func(node parse.Node) bool {
		switch node.Type() {
		case "for_binding", "iteration_specification", "let_binding":
			for _, child := range node.NamedChildren() {
				if child.Type() == nodeIdentifierType {
					defined[child.Text()] = true
					break // the bound name precedes the iterated expression
				}
			}
		case "do_parameter_list", "tuple_expression":
			if parent := node.Parent(); !parent.IsNull() &&
				(parent.Type() == "assignment" || parent.Type() == "do_clause") {
				for _, child := range node.NamedChildren() {
					if child.Type() == nodeIdentifierType {
						defined[child.Text()] = true
					}
				}
			}
		}
		return true
	})
}

// importedSymbolSet collects every name visible through the file's
// imports, using the Index's export sets.
func importedSymbolSet(item *parse.ParsedItem, ctx *SemanticContext) map[string]bool {
	visible := map[string]bool{}

	item.Root().Walk(func(node parse.Node) bool {
		if t := node.Type(); t != "using_statement" && t != "import_statement" {
			return true
		}
		for _, mod := range importedModules(node) {
			visible[mod.name] = true
			for _, fn := range ctx.Index.ModuleFunctions(mod.name) {
				if ctx.Index.IsExported(mod.name, fn) {
					visible[fn] = true
				}
			}
			for _, ty := range ctx.Index.ModuleTypes(mod.name) {
				visible[ty] = true
			}
		}
		return false
	})

	return visible
}

func isUppercaseType(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
