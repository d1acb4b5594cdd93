// signatures.go extracts callable signatures: parameter names, parameter
// types and the optional declared return type. Every overload is kept so
// multiple dispatch stays visible in hover and completion.
package analyze

import (
	"strings"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// param is one extracted formal parameter plus the node it came from.
type param struct {
	Name string
	Type string
	node parse.Node
}

// functionSignatureCall digs the call expression out of a function
// definition: either under a signature wrapper node or as a direct child.
func functionSignatureCall(node parse.Node) (parse.Node, bool) {
	if sig := node.ChildByField("signature"); !sig.IsNull() {
		if sig.Type() == nodeCall {
			return sig, true
		}
		if call, ok := sig.FirstChildOfType(nodeCall); ok {
			return call, true
		}
	}
	if sig, ok := node.FirstChildOfType(nodeSignature); ok {
		if call, found := sig.FirstChildOfType(nodeCall); found {
			return call, true
		}
	}
	if call, ok := node.FirstChildOfType(nodeCall); ok {
		return call, true
	}
	return parse.Node{}, false
}

// callName returns the callee name node of a call expression. Qualified
// names (A.f) yield the final identifier.
func callName(call parse.Node) (parse.Node, bool) {
	if node := call.ChildByField("function"); !node.IsNull() {
		return lastIdentifier(node)
	}
	if call.ChildCount() > 0 {
		return lastIdentifier(call.Child(0))
	}
	return parse.Node{}, false
}

func lastIdentifier(node parse.Node) (parse.Node, bool) {
	switch node.Type() {
	case nodeIdentifier, "operator":
		return node, true
	case nodeField:
		children := node.NamedChildren()
		for i := len(children) - 1; i >= 0; i-- {
			if children[i].Type() == nodeIdentifier {
				return children[i], true
			}
		}
	}
	return parse.Node{}, false
}

// extractParameters walks the argument list of a signature call. Typed
// parameters (x::Int), plain identifiers and keyword parameters after the
// semicolon are all recorded.
func extractParameters(call parse.Node) []param {
	args, ok := call.FirstChildOfType(nodeArguments)
	if !ok {
		if args, ok = call.FirstChildOfType(nodeParameters); !ok {
			return nil
		}
	}

	var out []param
	var collect func(node parse.Node)
	collect = func(node parse.Node) {
		switch node.Type() {
		case nodeIdentifier:
			out = append(out, param{Name: node.Text(), node: node})
		case nodeTyped:
			p := param{}
			for _, child := range node.NamedChildren() {
				if child.Type() == nodeIdentifier && p.Name == "" {
					p.Name = child.Text()
					p.node = child
				} else if p.Name != "" && p.Type == "" {
					p.Type = child.Text()
				}
			}
			if p.Name != "" {
				out = append(out, p)
			}
		case "optional_parameter", "named_argument":
			for _, child := range node.NamedChildren() {
				collect(child)
				break // the identifier before the default value
			}
		case "keyword_parameters":
			for _, child := range node.NamedChildren() {
				collect(child)
			}
		case "slurp_parameter", "splat_expression":
			if ident, ok := node.FirstChildOfType(nodeIdentifier); ok {
				out = append(out, param{Name: ident.Text() + "...", node: ident})
			}
		}
	}
	for _, child := range args.NamedChildren() {
		collect(child)
	}
	return out
}

// returnType returns the declared return type of a function definition
// (the expression after :: on the signature), or "".
func returnType(node parse.Node) string {
	if ret := node.ChildByField("return_type"); !ret.IsNull() {
		return strings.TrimSpace(ret.Text())
	}
	if sig := node.ChildByField("signature"); !sig.IsNull() && sig.Type() == nodeTyped {
		children := sig.NamedChildren()
		if len(children) == 2 {
			return strings.TrimSpace(children[1].Text())
		}
	}
	return ""
}

func parameterList(params []param) []index.Parameter {
	out := make([]index.Parameter, 0, len(params))
	for _, p := range params {
		out = append(out, index.Parameter{Name: p.Name, Type: p.Type})
	}
	return out
}

// signatureString renders "name(a::Int, b) -> Ret" for hover display.
func signatureString(name string, params []param, ret string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("(")
	for i, p := range params {
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
	if ret != "" {
		b.WriteString(" -> ")
		b.WriteString(ret)
	}
	return b.String()
}
