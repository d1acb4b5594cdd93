// navigation.go implements go-to-definition and find-references by
// delegating to the Index.
package features

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Definition resolves the word at pos to its defining location.
func (f *Features) Definition(text, fileURI string, pos protocol.Position) []protocol.Location {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}
	_, name := splitQualified(word)

	sym, ok := f.engine.ResolveSymbolAt(name, fileURI, pos)
	if !ok {
		return nil
	}

	return []protocol.Location{{
		URI:   uri.URI(sym.FileURI),
		Range: sym.Range,
	}}
}

// References returns every reference to the word at pos.
// includeDeclaration controls whether defining occurrences are included.
func (f *Features) References(text, fileURI string, pos protocol.Position, includeDeclaration bool) []protocol.Location {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}
	_, name := splitQualified(word)

	var out []protocol.Location
	for _, ref := range f.ix.References(name, includeDeclaration) {
		out = append(out, protocol.Location{
			URI:   uri.URI(ref.FileURI),
			Range: ref.Range,
		})
	}
	return out
}
