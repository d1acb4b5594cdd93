// scopes.go builds the per-file tree of lexical regions used for
// scope-aware symbol resolution.
package analyze

import (
	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// scopeOpeners are the node types that introduce a lexical region.
var scopeOpeners = map[string]bool{
	nodeModule:        true,
	nodeFunction:      true,
	nodeShortFunction: true,
	nodeMacro:         true,
	nodeStruct:        true,
	"let_statement":   true,
	"for_statement":   true,
	"while_statement": true,
	"do_clause":       true,
	"comprehension_expression": true,
}

// buildScopes returns the scope tree of the file plus a lookup that maps
// any node to the id of its innermost enclosing scope. Scope id 0 is the
// file itself.
func buildScopes(item *parse.ParsedItem) (*index.ScopeNode, func(parse.Node) uint32) {
	root := item.Root()

	tree := &index.ScopeNode{ID: 0, Range: root.Range()}
	nextID := uint32(1)

	var build func(node parse.Node, parent *index.ScopeNode)
	build = func(node parse.Node, parent *index.ScopeNode) {
		current := parent
		if scopeOpeners[node.Type()] {
			scope := &index.ScopeNode{ID: nextID, Range: node.Range()}
			nextID++
			parent.Children = append(parent.Children, scope)
			current = scope
		}
		for i := 0; i < node.ChildCount(); i++ {
			build(node.Child(i), current)
		}
	}
	for i := 0; i < root.ChildCount(); i++ {
		build(root.Child(i), tree)
	}

	scopeOf := func(node parse.Node) uint32 {
		deepest := tree.DeepestContaining(node.Range().Start)
		if deepest == nil {
			return 0
		}
		return deepest.ID
	}

	return tree, scopeOf
}
