// Package index implements the unified symbol/type/signature store shared
// by the standard-library, package and workspace pipelines, plus its JSON
// persistence.
package index

import (
	"go.lsp.dev/protocol"
)

// SymbolKind classifies an indexed symbol.
type SymbolKind string

// Symbol kinds.
const (
	KindFunction SymbolKind = "function"
	KindType     SymbolKind = "type"
	KindVariable SymbolKind = "variable"
	KindConstant SymbolKind = "constant"
	KindMacro    SymbolKind = "macro"
	KindModule   SymbolKind = "module"
)

// Symbol is one named entity extracted from a file. Variables live inside
// their scope; functions, types and modules are module-level.
type Symbol struct {
	Name      string         `json:"name"`
	Kind      SymbolKind     `json:"kind"`
	Range     protocol.Range `json:"range"`
	ScopeID   uint32         `json:"scope_id"`
	Doc       string         `json:"doc,omitempty"`
	Signature string         `json:"signature,omitempty"`
	FileURI   string         `json:"file_uri"`

	// TypeHint is the inferred type of a variable, when the analyzer
	// could derive one from the declared return type of the assigned
	// call. Empty when unknown.
	TypeHint string `json:"type_hint,omitempty"`
}

// Parameter is one formal parameter of a signature.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Signature is one callable overload. Multiple signatures per
// (module, name) model multiple dispatch.
type Signature struct {
	Module     string      `json:"module"`
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"return_type,omitempty"`
	Doc        string      `json:"doc,omitempty"`
	FileURI    string      `json:"file_uri,omitempty"`
}

// TypeKind classifies a type entry.
type TypeKind string

// Type kinds.
const (
	TypeAbstract  TypeKind = "abstract"
	TypeConcrete  TypeKind = "concrete"
	TypePrimitive TypeKind = "primitive"
)

// TypeEntry is one declared type.
type TypeEntry struct {
	Module    string   `json:"module"`
	Name      string   `json:"name"`
	Kind      TypeKind `json:"kind"`
	Supertype string   `json:"supertype,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	FileURI   string   `json:"file_uri,omitempty"`
}

// Reference is one occurrence of a name.
type Reference struct {
	Name         string         `json:"name"`
	FileURI      string         `json:"file_uri"`
	Range        protocol.Range `json:"range"`
	IsDefinition bool           `json:"is_definition"`
}

// ScopeNode is one lexical region of a file's scope tree. IDs are unique
// within the file.
type ScopeNode struct {
	ID       uint32         `json:"id"`
	Range    protocol.Range `json:"range"`
	Children []*ScopeNode   `json:"children,omitempty"`
}

// Find returns the node with the given id, or nil.
func (s *ScopeNode) Find(id uint32) *ScopeNode {
	if s == nil {
		return nil
	}
	if s.ID == id {
		return s
	}
	for _, child := range s.Children {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Contains reports whether the position falls inside the node's range.
func (s *ScopeNode) Contains(pos protocol.Position) bool {
	return PositionInRange(pos, s.Range)
}

// Depth returns the nesting depth of id below s, or -1 when absent.
func (s *ScopeNode) Depth(id uint32) int {
	return depthRecursive(s, id, 0)
}

func depthRecursive(node *ScopeNode, id uint32, depth int) int {
	if node == nil {
		return -1
	}
	if node.ID == id {
		return depth
	}
	for _, child := range node.Children {
		if d := depthRecursive(child, id, depth+1); d >= 0 {
			return d
		}
	}
	return -1
}

// DeepestContaining returns the deepest node whose range contains pos.
func (s *ScopeNode) DeepestContaining(pos protocol.Position) *ScopeNode {
	if s == nil || !s.Contains(pos) {
		return nil
	}
	for _, child := range s.Children {
		if deepest := child.DeepestContaining(pos); deepest != nil {
			return deepest
		}
	}
	return s
}

// PositionInRange reports whether pos falls within r (inclusive at both
// the start and the end).
func PositionInRange(pos protocol.Position, r protocol.Range) bool {
	if pos.Line < r.Start.Line || pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Character < r.Start.Character {
		return false
	}
	if pos.Line == r.End.Line && pos.Character > r.End.Character {
		return false
	}
	return true
}

// AnalysisResult is the full output of the analyzers for one file.
type AnalysisResult struct {
	Symbols    []Symbol    `json:"symbols"`
	Signatures []Signature `json:"signatures"`
	Types      []TypeEntry `json:"types"`
	Exports    ExportSet   `json:"exports"`
	References []Reference `json:"references"`
	Scopes     *ScopeNode  `json:"scopes,omitempty"`
}

// ExportSet maps module name -> set of exported names.
type ExportSet map[string]map[string]bool

// Add records name as exported from module.
func (e ExportSet) Add(module, name string) {
	set, ok := e[module]
	if !ok {
		set = map[string]bool{}
		e[module] = set
	}
	set[name] = true
}

// IsExported reports whether module exports name.
func (e ExportSet) IsExported(module, name string) bool {
	return e[module][name]
}

// Merge unions other into e.
func (e ExportSet) Merge(other ExportSet) {
	for module, names := range other {
		for name := range names {
			e.Add(module, name)
		}
	}
}
