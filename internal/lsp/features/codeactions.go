// codeactions.go offers rule-based quick fixes keyed on diagnostic
// codes.
package features

import (
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/vesper-sci/vesper/internal/lsp/diagnostics"
)

// CodeActions returns quick fixes for the diagnostics intersecting the
// requested range.
func (f *Features) CodeActions(text, fileURI string, rng protocol.Range, diags []protocol.Diagnostic) []protocol.CodeAction {
	var actions []protocol.CodeAction

	for _, diag := range diags {
		if !rangesOverlap(rng, diag.Range) {
			continue
		}

		code, _ := diag.Code.(string)
		switch code {
		case diagnostics.CodeMissingEnd:
			if action := insertEndAction(text, fileURI, diag); action != nil {
				actions = append(actions, *action)
			}
		case diagnostics.CodeUnmatchedDelimiter:
			if action := closeDelimiterAction(text, fileURI, diag); action != nil {
				actions = append(actions, *action)
			}
		case diagnostics.CodeUnexpectedEnd:
			actions = append(actions, removeLineAction(fileURI, diag, "Remove unexpected 'end'"))
		}
	}

	return actions
}

// insertEndAction appends a matching 'end' after the broken block.
func insertEndAction(text, fileURI string, diag protocol.Diagnostic) *protocol.CodeAction {
	lines := strings.Split(text, "\n")
	insertLine := uint32(len(lines))
	indent := ""
	if int(diag.Range.Start.Line) < len(lines) {
		line := lines[diag.Range.Start.Line]
		indent = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	}

	edit := protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: insertLine, Character: 0},
			End:   protocol.Position{Line: insertLine, Character: 0},
		},
		NewText: indent + "end\n",
	}

	return quickFix("Insert missing 'end'", fileURI, diag, edit)
}

// closeDelimiterAction appends the closing delimiter named in the
// message at the end of the diagnostic's line.
func closeDelimiterAction(text, fileURI string, diag protocol.Diagnostic) *protocol.CodeAction {
	closing := ""
	switch {
	case strings.Contains(diag.Message, "'('"):
		closing = ")"
	case strings.Contains(diag.Message, "'['"):
		closing = "]"
	case strings.Contains(diag.Message, "'{'"):
		closing = "}"
	}
	if closing == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	lineLen := uint32(0)
	if int(diag.Range.Start.Line) < len(lines) {
		lineLen = uint32(len(lines[diag.Range.Start.Line]))
	}

	edit := protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: diag.Range.Start.Line, Character: lineLen},
			End:   protocol.Position{Line: diag.Range.Start.Line, Character: lineLen},
		},
		NewText: closing,
	}

	return quickFix("Insert closing '"+closing+"'", fileURI, diag, edit)
}

// removeLineAction deletes the diagnostic's whole line.
func removeLineAction(fileURI string, diag protocol.Diagnostic, title string) protocol.CodeAction {
	edit := protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: diag.Range.Start.Line, Character: 0},
			End:   protocol.Position{Line: diag.Range.Start.Line + 1, Character: 0},
		},
		NewText: "",
	}
	return *quickFix(title, fileURI, diag, edit)
}

func quickFix(title, fileURI string, diag protocol.Diagnostic, edits ...protocol.TextEdit) *protocol.CodeAction {
	kind := protocol.QuickFix
	return &protocol.CodeAction{
		Title:       title,
		Kind:        kind,
		Diagnostics: []protocol.Diagnostic{diag},
		Edit: &protocol.WorkspaceEdit{
			Changes: map[uri.URI][]protocol.TextEdit{
				uri.URI(fileURI): edits,
			},
		},
	}
}

func rangesOverlap(a, b protocol.Range) bool {
	if a.End.Line < b.Start.Line || b.End.Line < a.Start.Line {
		return false
	}
	return true
}
