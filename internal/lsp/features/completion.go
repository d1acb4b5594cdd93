// completion.go merges workspace, import-visible and standard-library
// symbols matching the word before the cursor, ranked fuzzily.
package features

import (
	"sort"

	"github.com/sahilm/fuzzy"
	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
)

// maxCompletionItems bounds the returned list.
const maxCompletionItems = 100

// Completion returns items for the current word prefix at pos.
func (f *Features) Completion(text string, pos protocol.Position) []protocol.CompletionItem {
	prefix := prefixAt(text, pos)
	if prefix == "" {
		return nil
	}

	// Gather candidates: one entry per distinct (name, kind).
	type candidate struct {
		name   string
		kind   protocol.CompletionItemKind
		detail string
	}
	seen := map[string]bool{}
	var candidates []candidate

	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		candidates = append(candidates, candidate{name: name, kind: kind, detail: detail})
	}

	for _, sym := range f.ix.SymbolsByPrefix(prefix) {
		add(sym.Name, completionKind(sym.Kind), sym.Signature)
	}

	// Module-level functions and types visible through exports.
	for module := range f.ix.Exports() {
		for _, fn := range f.ix.ModuleFunctions(module) {
			if hasPrefix(fn, prefix) && f.ix.IsExported(module, fn) {
				add(fn, protocol.CompletionItemKindFunction, module)
			}
		}
		for _, ty := range f.ix.ModuleTypes(module) {
			if hasPrefix(ty, prefix) {
				add(ty, protocol.CompletionItemKindClass, module)
			}
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	// Fuzzy-rank the collected names against the prefix.
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	matches := fuzzy.Find(prefix, names)

	var items []protocol.CompletionItem
	for _, match := range matches {
		c := candidates[match.Index]
		items = append(items, protocol.CompletionItem{
			Label:  c.name,
			Kind:   c.kind,
			Detail: c.detail,
		})
		if len(items) >= maxCompletionItems {
			break
		}
	}

	// fuzzy.Find drops exact-prefix candidates only when the prefix is
	// malformed; fall back to plain prefix order in that case.
	if len(items) == 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })
		for _, c := range candidates {
			items = append(items, protocol.CompletionItem{Label: c.name, Kind: c.kind, Detail: c.detail})
			if len(items) >= maxCompletionItems {
				break
			}
		}
	}

	return items
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func completionKind(kind index.SymbolKind) protocol.CompletionItemKind {
	switch kind {
	case index.KindFunction:
		return protocol.CompletionItemKindFunction
	case index.KindType:
		return protocol.CompletionItemKindClass
	case index.KindConstant:
		return protocol.CompletionItemKindConstant
	case index.KindMacro:
		return protocol.CompletionItemKindSnippet
	case index.KindModule:
		return protocol.CompletionItemKindModule
	default:
		return protocol.CompletionItemKindVariable
	}
}
