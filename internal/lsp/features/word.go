// word.go locates the identifier (possibly module-qualified) under a
// cursor position.
package features

import (
	"strings"

	"go.lsp.dev/protocol"
)

func isWordChar(c byte) bool {
	return c == '_' || c == '!' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// wordAt returns the qualified word under pos ("Pkg.foo" or "foo") and
// the bare word's start character.
func wordAt(text string, pos protocol.Position) (string, uint32) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0
	}
	line := lines[pos.Line]

	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	if start == end {
		return "", 0
	}

	word := line[start:end]

	// Fold in a dotted qualifier: "Pkg." immediately before the word.
	qualStart := start
	for qualStart >= 2 && line[qualStart-1] == '.' {
		q := qualStart - 1
		for q > 0 && isWordChar(line[q-1]) {
			q--
		}
		if q == qualStart-1 {
			break
		}
		qualStart = q
	}
	if qualStart < start {
		word = line[qualStart:end]
	}

	return word, uint32(start)
}

// prefixAt returns the word fragment ending at pos, for completion.
func prefixAt(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]

	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// splitQualified splits "Pkg.Sub.foo" into ("Pkg.Sub", "foo"); an
// unqualified name yields ("", name).
func splitQualified(word string) (string, string) {
	idx := strings.LastIndex(word, ".")
	if idx < 0 {
		return "", word
	}
	return word[:idx], word[idx+1:]
}
