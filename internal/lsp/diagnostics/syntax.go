// Package diagnostics derives editor diagnostics from the CST: syntactic
// analysis of error/missing nodes and semantic checks backed by the
// Index. Results are cached per (uri, version) and recomputation is
// debounced while the user types.
package diagnostics

import (
	"strings"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// Diagnostic codes attached to protocol.Diagnostic.Code.
const (
	CodeMissingEnd         = "missing_end"
	CodeUnexpectedEnd      = "unexpected_end"
	CodeUnmatchedDelimiter = "unmatched_delimiter"
	CodeUnterminatedString = "unterminated_string"
	CodeInvalidAssignment  = "invalid_assignment"
	CodeSyntaxError        = "syntax_error"
	CodeUnresolvedImport   = "unresolved_import"
	CodeUndefinedVariable  = "undefined_variable"
)

const diagnosticSource = "vesper"

// blockDescriptions maps block node types to the phrase used in missing
// 'end' messages.
var blockDescriptions = map[string]string{
	"function_definition": "function definition",
	"if_statement":        "if statement",
	"for_statement":       "for loop",
	"while_statement":     "while loop",
	"module_definition":   "module",
	"struct_definition":   "struct definition",
	"let_statement":       "let block",
	"do_clause":           "do block",
}

// Syntactic walks error and missing nodes and maps the common breakage
// patterns to precise messages. Each diagnostic spans at most one line:
// an error never paints the whole file red.
func Syntactic(item *parse.ParsedItem) []protocol.Diagnostic {
	var diags []protocol.Diagnostic

	item.Root().Walk(func(node parse.Node) bool {
		switch {
		case node.IsMissing():
			message, code := missingMessage(node)
			diags = append(diags, makeDiagnostic(item, node, message, code))
			return false
		case node.IsError():
			message, code := errorMessage(node)
			diags = append(diags, makeDiagnostic(item, node, message, code))
			// Do not descend: nested errors describe the same breakage.
			return false
		}
		return node.HasError()
	})

	return diags
}

// missingMessage describes a node the parser inserted to recover,
// which is almost always a missing 'end'.
func missingMessage(node parse.Node) (string, string) {
	text := node.Text()
	if text != "" && text != "end" {
		return "Missing '" + text + "'", CodeSyntaxError
	}

	parent := node.Parent()
	if !parent.IsNull() {
		if desc, ok := blockDescriptions[parent.Type()]; ok {
			return "Missing 'end' for " + desc, CodeMissingEnd
		}
	}
	return "Missing 'end'", CodeMissingEnd
}

// errorMessage classifies an ERROR node by its contents.
func errorMessage(node parse.Node) (string, string) {
	text := node.Text()
	trimmed := strings.TrimSpace(text)

	// Unexpected 'end' keyword with no open block.
	if trimmed == "end" || strings.HasPrefix(trimmed, "end\n") || strings.HasPrefix(trimmed, "end ") {
		return "Unexpected 'end' keyword. Check for matching block structure.", CodeUnexpectedEnd
	}

	// A block keyword inside the error usually means its 'end' never came.
	for _, kw := range []string{"function", "if", "for", "while", "module", "struct"} {
		if hasKeyword(trimmed, kw) {
			desc := kw
			switch kw {
			case "function":
				desc = "function definition"
			case "if":
				desc = "if statement"
			case "for":
				desc = "for loop"
			case "while":
				desc = "while loop"
			case "struct":
				desc = "struct definition"
			}
			return "Missing 'end' for " + desc, CodeMissingEnd
		}
	}

	// Unterminated string: odd number of unescaped quotes.
	if strings.Count(trimmed, `"`)%2 == 1 {
		return "Unterminated string literal", CodeUnterminatedString
	}

	// Unmatched delimiters.
	for _, pair := range [][2]string{{"(", ")"}, {"[", "]"}, {"{", "}"}} {
		if strings.Count(trimmed, pair[0]) != strings.Count(trimmed, pair[1]) {
			return "Unmatched '" + pair[0] + "': expected a closing '" + pair[1] + "'", CodeUnmatchedDelimiter
		}
	}

	// Assignment to something that cannot be assigned.
	if idx := strings.Index(trimmed, "="); idx > 0 {
		lhs := strings.TrimSpace(trimmed[:idx])
		if lhs != "" && !isValidAssignmentTarget(lhs) {
			return "Invalid assignment target", CodeInvalidAssignment
		}
	}

	return "Syntax error detected. Check for a missing 'end' or unmatched delimiters.", CodeSyntaxError
}

func hasKeyword(text, kw string) bool {
	idx := strings.Index(text, kw)
	if idx < 0 {
		return false
	}
	if idx > 0 {
		prev := text[idx-1]
		if prev != ' ' && prev != '\n' && prev != '\t' && prev != ';' {
			return false
		}
	}
	end := idx + len(kw)
	if end < len(text) {
		next := text[end]
		if next != ' ' && next != '\n' && next != '\t' && next != '(' {
			return false
		}
	}
	return true
}

func isValidAssignmentTarget(lhs string) bool {
	if lhs == "" {
		return false
	}
	first := lhs[0]
	if first >= '0' && first <= '9' {
		return false
	}
	if first == '"' || first == '\'' {
		return false
	}
	return true
}

// makeDiagnostic builds an error diagnostic whose range covers only the
// offending token, clamped to a single line.
func makeDiagnostic(item *parse.ParsedItem, node parse.Node, message, code string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    clampToLine(item.Text, node.Range()),
		Severity: protocol.DiagnosticSeverityError,
		Code:     code,
		Source:   diagnosticSource,
		Message:  message,
	}
}

// clampToLine shortens a multi-line range to its first line.
func clampToLine(text string, r protocol.Range) protocol.Range {
	if r.End.Line <= r.Start.Line {
		return r
	}

	lineLen := uint32(0)
	lines := strings.Split(text, "\n")
	if int(r.Start.Line) < len(lines) {
		lineLen = uint32(len(lines[r.Start.Line]))
	}
	end := lineLen
	if end < r.Start.Character {
		end = r.Start.Character + 1
	}

	return protocol.Range{
		Start: r.Start,
		End:   protocol.Position{Line: r.Start.Line, Character: end},
	}
}
