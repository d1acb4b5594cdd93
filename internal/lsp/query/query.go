// Package query answers symbol lookups over the Index, including the
// scope-aware resolution used by hover and go-to-definition.
package query

import (
	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
)

// Engine wraps an Index with position- and scope-aware lookups.
type Engine struct {
	ix *index.Index
}

// New creates an engine over the index.
func New(ix *index.Index) *Engine {
	return &Engine{ix: ix}
}

// FindByName returns all symbols with the exact name.
func (e *Engine) FindByName(name string) []index.Symbol {
	return e.ix.SymbolsByName(name)
}

// FindByPrefix returns all symbols whose name starts with prefix.
func (e *Engine) FindByPrefix(prefix string) []index.Symbol {
	return e.ix.SymbolsByPrefix(prefix)
}

// FindInFile returns all symbols declared in the file, in source order.
func (e *Engine) FindInFile(fileURI string) []index.Symbol {
	return e.ix.SymbolsInFile(fileURI)
}

// FindAtPosition returns the symbols whose range contains the position.
func (e *Engine) FindAtPosition(fileURI string, pos protocol.Position) []index.Symbol {
	var out []index.Symbol
	for _, sym := range e.ix.SymbolsInFile(fileURI) {
		if index.PositionInRange(pos, sym.Range) {
			out = append(out, sym)
		}
	}
	return out
}

// ResolveSymbolAt resolves name as seen from (fileURI, pos). Among
// same-file candidates it prefers the one whose scope is the deepest
// scope containing the position, then walks parent scopes outward, and
// finally falls back to a position-in-range check on the symbol itself.
// Candidates from other files are used only when the file has none.
func (e *Engine) ResolveSymbolAt(name, fileURI string, pos protocol.Position) (index.Symbol, bool) {
	candidates := e.ix.SymbolsByName(name)
	if len(candidates) == 0 {
		return index.Symbol{}, false
	}

	var local []index.Symbol
	for _, sym := range candidates {
		if sym.FileURI == fileURI {
			local = append(local, sym)
		}
	}

	if len(local) > 0 {
		if tree := e.ix.ScopeTree(fileURI); tree != nil {
			// Walk from the deepest scope containing pos outward; the
			// first scope owning a candidate wins.
			for scope := tree.DeepestContaining(pos); scope != nil; scope = parentOf(tree, scope) {
				for _, sym := range local {
					if sym.ScopeID == scope.ID {
						return sym, true
					}
				}
			}
		}

		// Position-in-range fallback: the symbol under the cursor.
		for _, sym := range local {
			if index.PositionInRange(pos, sym.Range) {
				return sym, true
			}
		}
		return local[0], true
	}

	return candidates[0], true
}

// parentOf returns the parent of scope within the tree, or nil at the
// root.
func parentOf(tree, scope *index.ScopeNode) *index.ScopeNode {
	if tree == nil || scope == nil || tree.ID == scope.ID {
		return nil
	}
	for _, child := range tree.Children {
		if child.ID == scope.ID {
			return tree
		}
		if found := parentOf(child, scope); found != nil {
			return found
		}
	}
	return nil
}
