// Package parse wraps the tree-sitter Julia grammar behind a small CST
// API the analyzers and diagnostics walk. Keeping the binding surface in
// one package means the rest of the language server never touches
// tree-sitter types directly.
package parse

import (
	"context"
	"fmt"

	"github.com/alexaandru/go-sitter-forest/julia"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"go.lsp.dev/protocol"
)

var language = sitter.NewLanguage(julia.GetLanguage())

// ParsedItem is one parsed source file handed to the analyzers.
type ParsedItem struct {
	Path string
	Text string
	tree *sitter.Tree
}

// Parser produces concrete syntax trees for Julia source text. A Parser
// is not safe for concurrent use; each worker owns its own.
type Parser struct {
	p *sitter.Parser
}

// NewParser creates a parser for the Julia grammar.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(language)
	return &Parser{p: p}
}

// Parse parses text from scratch.
func (p *Parser) Parse(ctx context.Context, path, text string) (*ParsedItem, error) {
	return p.parse(ctx, path, text, nil)
}

// Reparse parses text incrementally against the previous tree of the
// same file.
func (p *Parser) Reparse(ctx context.Context, old *ParsedItem, text string) (*ParsedItem, error) {
	if old == nil {
		return p.parse(ctx, "", text, nil)
	}
	return p.parse(ctx, old.Path, text, old.tree)
}

func (p *Parser) parse(ctx context.Context, path, text string, old *sitter.Tree) (*ParsedItem, error) {
	tree, err := p.p.ParseString(ctx, old, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &ParsedItem{Path: path, Text: text, tree: tree}, nil
}

// Root returns the root node of the file.
func (item *ParsedItem) Root() Node {
	return Node{n: item.tree.RootNode(), src: []byte(item.Text)}
}

// Node is one CST node plus the source it indexes into.
type Node struct {
	n   sitter.Node
	src []byte
}

// IsNull reports whether the node is absent (e.g. a missing child).
func (node Node) IsNull() bool {
	return node.n.IsNull()
}

// Type returns the grammar node type, e.g. "function_definition".
func (node Node) Type() string {
	return node.n.Type()
}

// Text returns the source text the node spans.
func (node Node) Text() string {
	start, end := node.n.StartByte(), node.n.EndByte()
	if int(end) > len(node.src) {
		end = uint(len(node.src))
	}
	if start > end {
		return ""
	}
	return string(node.src[start:end])
}

// Range returns the node's span as an LSP range.
func (node Node) Range() protocol.Range {
	start, end := node.n.StartPoint(), node.n.EndPoint()
	return protocol.Range{
		Start: protocol.Position{Line: uint32(start.Row), Character: uint32(start.Column)},
		End:   protocol.Position{Line: uint32(end.Row), Character: uint32(end.Column)},
	}
}

// StartLine returns the zero-based start line.
func (node Node) StartLine() uint32 {
	return uint32(node.n.StartPoint().Row)
}

// Parent returns the parent node; IsNull is true at the root.
func (node Node) Parent() Node {
	return Node{n: node.n.Parent(), src: node.src}
}

// ChildCount returns the number of children, anonymous ones included.
func (node Node) ChildCount() int {
	return int(node.n.ChildCount())
}

// Child returns the i-th child.
func (node Node) Child(i int) Node {
	return Node{n: node.n.Child(uint32(i)), src: node.src}
}

// NamedChildren returns all named children.
func (node Node) NamedChildren() []Node {
	count := int(node.n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, Node{n: node.n.NamedChild(uint32(i)), src: node.src})
	}
	return out
}

// ChildByField returns the child bound to a grammar field, e.g. "name".
func (node Node) ChildByField(field string) Node {
	return Node{n: node.n.ChildByFieldName(field), src: node.src}
}

// IsNamed reports whether the node is a named grammar node.
func (node Node) IsNamed() bool {
	return node.n.IsNamed()
}

// IsError reports whether the node is an ERROR node.
func (node Node) IsError() bool {
	return node.n.IsError()
}

// IsMissing reports whether the parser inserted this node to recover.
func (node Node) IsMissing() bool {
	return node.n.IsMissing()
}

// HasError reports whether the subtree contains any error.
func (node Node) HasError() bool {
	return node.n.HasError()
}

// Walk visits the subtree depth-first. Returning false skips the node's
// children.
func (node Node) Walk(visit func(Node) bool) {
	if node.IsNull() {
		return
	}
	if !visit(node) {
		return
	}
	for i := 0; i < node.ChildCount(); i++ {
		node.Child(i).Walk(visit)
	}
}

// FirstChildOfType returns the first direct child with the given type.
func (node Node) FirstChildOfType(kind string) (Node, bool) {
	for i := 0; i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Type() == kind {
			return child, true
		}
	}
	return Node{}, false
}
