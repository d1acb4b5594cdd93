// hover.go builds hover content: Index documentation first, the package
// registry next, and a local-context fallback built from the resolved
// symbol.
package features

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/query"
)

// RegistryLookup resolves documentation for a qualified name from the
// package registry. External; may be nil.
type RegistryLookup func(module, name string) (string, bool)

// Features answers editor queries against one merged Index.
type Features struct {
	ix       *index.Index
	engine   *query.Engine
	registry RegistryLookup
}

// New creates the feature set. registry may be nil.
func New(ix *index.Index, registry RegistryLookup) *Features {
	return &Features{ix: ix, engine: query.New(ix), registry: registry}
}

// Engine exposes the underlying query engine.
func (f *Features) Engine() *query.Engine {
	return f.engine
}

// Hover builds hover content for the word at pos in the document text.
// Returns nil when there is nothing useful to show.
func (f *Features) Hover(text, fileURI string, pos protocol.Position) *protocol.Hover {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}

	module, name := splitQualified(word)

	// Index documentation wins.
	if content := f.indexHover(module, name); content != "" {
		return markdownHover(content)
	}

	// Package registry next, for qualified names only.
	if module != "" && f.registry != nil {
		if doc, ok := f.registry(module, name); ok {
			return markdownHover(NormalizeDoc(doc))
		}
	}

	// Local context: whatever the resolved symbol tells us.
	if sym, ok := f.engine.ResolveSymbolAt(name, fileURI, pos); ok {
		if content := symbolHover(f.ix, sym); content != "" {
			return markdownHover(content)
		}
	}

	return nil
}

// indexHover renders the signatures and docs the Index holds for a
// qualified or unqualified name.
func (f *Features) indexHover(module, name string) string {
	var sigs []index.Signature
	if module != "" {
		sigs = f.ix.Signatures(module, name)
	} else {
		// Unqualified: try Base, then any module that exports the name.
		sigs = f.ix.Signatures("Base", name)
		if len(sigs) == 0 {
			for mod := range f.ix.Exports() {
				if f.ix.IsExported(mod, name) {
					if found := f.ix.Signatures(mod, name); len(found) > 0 {
						sigs = found
						break
					}
				}
			}
		}
	}
	if len(sigs) == 0 {
		if module != "" {
			if entry, ok := f.ix.Type(module, name); ok {
				return typeHover(entry)
			}
		}
		return ""
	}

	var b strings.Builder
	b.WriteString("```julia\n")
	for i, sig := range sigs {
		if i >= 5 {
			fmt.Fprintf(&b, "# %d more methods\n", len(sigs)-i)
			break
		}
		b.WriteString(renderSignature(sig))
		b.WriteString("\n")
	}
	b.WriteString("```")

	for _, sig := range sigs {
		if sig.Doc != "" {
			b.WriteString("\n\n")
			b.WriteString(NormalizeDoc(sig.Doc))
			break
		}
	}
	return b.String()
}

// symbolHover renders a local-context hover for a resolved symbol.
func symbolHover(ix *index.Index, sym index.Symbol) string {
	switch sym.Kind {
	case index.KindFunction:
		var b strings.Builder
		b.WriteString("```julia\n")
		if sym.Signature != "" {
			b.WriteString(sym.Signature)
		} else {
			b.WriteString(sym.Name)
		}
		b.WriteString("\n```")
		if sym.Doc != "" {
			b.WriteString("\n\n")
			b.WriteString(NormalizeDoc(sym.Doc))
		}
		return b.String()

	case index.KindType:
		for _, module := range []string{"", "Main"} {
			if entry, ok := ix.Type(module, sym.Name); ok {
				return typeHover(entry)
			}
		}
		return fmt.Sprintf("```julia\n%s\n```", sym.Name)

	case index.KindVariable, index.KindConstant:
		var b strings.Builder
		b.WriteString("```julia\n")
		if sym.TypeHint != "" {
			fmt.Fprintf(&b, "%s::%s\n", sym.Name, sym.TypeHint)
		}
		if sym.Signature != "" {
			// The assignment itself is the most useful value hint.
			b.WriteString(sym.Signature)
			b.WriteString("\n")
		} else if sym.TypeHint == "" {
			b.WriteString(sym.Name)
			b.WriteString("\n")
		}
		b.WriteString("```")
		return b.String()

	case index.KindModule:
		return fmt.Sprintf("```julia\nmodule %s\n```", sym.Name)

	case index.KindMacro:
		content := fmt.Sprintf("```julia\n%s\n```", sym.Name)
		if sym.Doc != "" {
			content += "\n\n" + NormalizeDoc(sym.Doc)
		}
		return content
	}
	return ""
}

func typeHover(entry index.TypeEntry) string {
	var b strings.Builder
	b.WriteString("```julia\n")
	switch entry.Kind {
	case index.TypeAbstract:
		fmt.Fprintf(&b, "abstract type %s", entry.Name)
	case index.TypePrimitive:
		fmt.Fprintf(&b, "primitive type %s", entry.Name)
	default:
		fmt.Fprintf(&b, "struct %s", entry.Name)
	}
	if entry.Supertype != "" {
		fmt.Fprintf(&b, " <: %s", entry.Supertype)
	}
	b.WriteString("\n")
	for _, field := range entry.Fields {
		fmt.Fprintf(&b, "    %s\n", field)
	}
	if len(entry.Fields) > 0 {
		b.WriteString("end\n")
	}
	b.WriteString("```")
	return b.String()
}

func renderSignature(sig index.Signature) string {
	var b strings.Builder
	b.WriteString(sig.Name)
	b.WriteString("(")
	for i, p := range sig.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != "" {
			b.WriteString("::")
			b.WriteString(p.Type)
		}
	}
	b.WriteString(")")
	if sig.ReturnType != "" {
		b.WriteString(" -> ")
		b.WriteString(sig.ReturnType)
	}
	return b.String()
}

func markdownHover(content string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: content,
		},
	}
}
