// Package features implements the editor-facing language features on top
// of the query engine and the Index: hover, completion, definition,
// references and code actions.
package features

import (
	"regexp"
	"strings"
)

var (
	metadataMarker = regexp.MustCompile(`(?m)^\s*(!!! compat.*|!!! warning|!!! note|!!! tip)\s*$`)
	manyBlankLines = regexp.MustCompile(`\n{4,}`)
	headingLine    = regexp.MustCompile(`(?m)^(#+)\s+`)
	fenceLine      = regexp.MustCompile(`(?m)^\s+(\x60\x60\x60)`)
)

// NormalizeDoc cleans a raw documentation string for markdown rendering:
// metadata markers are stripped, the spacing after heading hashes and the
// indentation of code fences are normalized, and runs of three or more
// blank lines collapse to two.
func NormalizeDoc(doc string) string {
	if doc == "" {
		return ""
	}

	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	doc = metadataMarker.ReplaceAllString(doc, "")
	doc = headingLine.ReplaceAllString(doc, "$1 ")
	doc = fenceLine.ReplaceAllString(doc, "$1")
	doc = manyBlankLines.ReplaceAllString(doc, "\n\n\n")

	return strings.TrimSpace(doc)
}
