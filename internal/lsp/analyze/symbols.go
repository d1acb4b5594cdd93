// symbols.go extracts named entities: functions, types, modules,
// constants, macros, variables and function parameters.
package analyze

import (
	"strings"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

func (ctx *fileContext) extractFunction(node parse.Node) {
	call, ok := functionSignatureCall(node)
	if !ok {
		return
	}
	nameNode, ok := callName(call)
	if !ok {
		return
	}

	name := nameNode.Text()
	doc := docCommentFor(node, ctx.item.Text)
	params := extractParameters(call)

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:      name,
		Kind:      index.KindFunction,
		Range:     nameNode.Range(),
		ScopeID:   ctx.scopeOf(node),
		Doc:       doc,
		Signature: signatureString(name, params, returnType(node)),
	})

	// Parameters are variables inside the function scope.
	scopeID := ctx.scopeOf(nameNode)
	for _, param := range params {
		if param.node.IsNull() {
			continue
		}
		ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
			Name:    param.Name,
			Kind:    index.KindVariable,
			Range:   param.node.Range(),
			ScopeID: scopeID,
		})
	}

	ctx.result.Signatures = append(ctx.result.Signatures, index.Signature{
		Module:     ctx.moduleFor(node),
		Name:       name,
		Parameters: parameterList(params),
		ReturnType: returnType(node),
		Doc:        doc,
	})
}

func (ctx *fileContext) extractMacro(node parse.Node) {
	nameNode := node.ChildByField("name")
	if nameNode.IsNull() {
		ident, ok := node.FirstChildOfType(nodeIdentifier)
		if !ok {
			return
		}
		nameNode = ident
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:    "@" + nameNode.Text(),
		Kind:    index.KindMacro,
		Range:   nameNode.Range(),
		ScopeID: ctx.scopeOf(node),
		Doc:     docCommentFor(node, ctx.item.Text),
	})
}

func (ctx *fileContext) extractStruct(node parse.Node) {
	nameNode, ok := structName(node)
	if !ok {
		return
	}

	var fields []string
	for _, child := range node.NamedChildren() {
		switch child.Type() {
		case nodeIdentifier:
			if child.Range() != nameNode.Range() {
				fields = append(fields, child.Text())
			}
		case nodeTyped:
			if ident, ok := child.FirstChildOfType(nodeIdentifier); ok {
				fields = append(fields, ident.Text())
			}
		}
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:    nameNode.Text(),
		Kind:    index.KindType,
		Range:   nameNode.Range(),
		ScopeID: ctx.scopeOf(node),
		Doc:     docCommentFor(node, ctx.item.Text),
	})
	ctx.result.Types = append(ctx.result.Types, index.TypeEntry{
		Module:    ctx.moduleFor(node),
		Name:      nameNode.Text(),
		Kind:      index.TypeConcrete,
		Supertype: supertypeOf(node),
		Fields:    fields,
	})
}

func (ctx *fileContext) extractAbstract(node parse.Node) {
	nameNode, ok := structName(node)
	if !ok {
		return
	}

	kind := index.TypeAbstract
	if node.Type() == nodePrimitive {
		kind = index.TypePrimitive
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:    nameNode.Text(),
		Kind:    index.KindType,
		Range:   nameNode.Range(),
		ScopeID: ctx.scopeOf(node),
		Doc:     docCommentFor(node, ctx.item.Text),
	})
	ctx.result.Types = append(ctx.result.Types, index.TypeEntry{
		Module:    ctx.moduleFor(node),
		Name:      nameNode.Text(),
		Kind:      kind,
		Supertype: supertypeOf(node),
	})
}

func (ctx *fileContext) extractModule(node parse.Node) {
	name, ok := moduleName(node)
	if !ok {
		return
	}
	nameNode := node.ChildByField("name")
	rng := node.Range()
	if !nameNode.IsNull() {
		rng = nameNode.Range()
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:    name,
		Kind:    index.KindModule,
		Range:   rng,
		ScopeID: ctx.scopeOf(node),
		Doc:     docCommentFor(node, ctx.item.Text),
	})
}

func (ctx *fileContext) extractConst(node parse.Node) {
	// const_statement wraps an assignment.
	assign, ok := node.FirstChildOfType(nodeAssignment)
	if !ok {
		return
	}
	nameNode, ok := assignmentTarget(assign)
	if !ok {
		return
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:      nameNode.Text(),
		Kind:      index.KindConstant,
		Range:     nameNode.Range(),
		ScopeID:   ctx.scopeOf(node),
		Doc:       docCommentFor(node, ctx.item.Text),
		Signature: strings.TrimSpace(assign.Text()),
	})
}

func (ctx *fileContext) extractAssignment(node parse.Node) {
	// Skip assignments owned by a const statement; those are constants.
	if parent := node.Parent(); !parent.IsNull() && parent.Type() == nodeConst {
		return
	}

	nameNode, ok := assignmentTarget(node)
	if !ok {
		return
	}

	ctx.result.Symbols = append(ctx.result.Symbols, index.Symbol{
		Name:      nameNode.Text(),
		Kind:      index.KindVariable,
		Range:     nameNode.Range(),
		ScopeID:   ctx.scopeOf(node),
		Signature: strings.TrimSpace(node.Text()),
		TypeHint:  ctx.inferAssignedType(node),
	})
}

// inferAssignedType derives the type of an assignment's target from its
// right-hand side: literals directly, calls through the declared return
// type of the callee in the base index.
func (ctx *fileContext) inferAssignedType(assign parse.Node) string {
	children := assign.NamedChildren()
	if len(children) < 2 {
		return ""
	}
	rhs := children[len(children)-1]

	switch rhs.Type() {
	case "integer_literal":
		return "Int"
	case "float_literal":
		return "Float64"
	case "string_literal":
		return "String"
	case "boolean_literal":
		return "Bool"
	case nodeCall:
		if ctx.base == nil {
			return ""
		}
		callee, ok := callName(rhs)
		if !ok {
			return ""
		}
		for _, sig := range ctx.base.SignaturesByName(callee.Text()) {
			if sig.ReturnType != "" {
				return sig.ReturnType
			}
		}
	}
	return ""
}

// assignmentTarget returns the identifier on the left-hand side of an
// assignment. Call targets (short function form) and destructuring are
// handled elsewhere or skipped.
func assignmentTarget(node parse.Node) (parse.Node, bool) {
	if node.ChildCount() == 0 {
		return parse.Node{}, false
	}
	lhs := node.Child(0)
	switch lhs.Type() {
	case nodeIdentifier:
		return lhs, true
	case nodeTyped:
		if ident, ok := lhs.FirstChildOfType(nodeIdentifier); ok {
			return ident, true
		}
	}
	return parse.Node{}, false
}

// structName returns the declared name of a struct/abstract/primitive
// definition, skipping type parameters.
func structName(node parse.Node) (parse.Node, bool) {
	if name := node.ChildByField("name"); !name.IsNull() {
		return name, true
	}
	if ident, ok := node.FirstChildOfType(nodeIdentifier); ok {
		return ident, true
	}
	// The name may sit under a type_head node together with the type
	// parameters and supertype; the first identifier there is the name.
	if head, ok := node.FirstChildOfType("type_head"); ok {
		var name parse.Node
		found := false
		head.Walk(func(n parse.Node) bool {
			if !found && n.Type() == nodeIdentifier {
				name, found = n, true
			}
			return !found
		})
		if found {
			return name, true
		}
	}
	return parse.Node{}, false
}

// supertypeOf returns the declared supertype after <:, if any.
func supertypeOf(node parse.Node) string {
	for i := 0; i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Type() == "type_clause" || child.Type() == "subtype_clause" {
			for _, sub := range child.NamedChildren() {
				if sub.Type() == nodeIdentifier || sub.Type() == nodeField {
					return sub.Text()
				}
			}
		}
	}
	return ""
}
