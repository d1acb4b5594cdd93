// document.go tracks one open editor document and its parse tree.
package parse

import "context"

// Document is an open file: its text, its editor version and its current
// parse tree. The document owns the tree; updates reparse incrementally.
type Document struct {
	URI     string
	Text    string
	Version int32

	parser *Parser
	item   *ParsedItem
}

// NewDocument parses the initial text.
func NewDocument(uri, text string, version int32) (*Document, error) {
	parser := NewParser()
	item, err := parser.Parse(context.Background(), uri, text)
	if err != nil {
		return nil, err
	}
	return &Document{URI: uri, Text: text, Version: version, parser: parser, item: item}, nil
}

// Update replaces the text and reparses against the previous tree.
// Stale versions (older than the current one) are ignored.
func (d *Document) Update(text string, version int32) error {
	if version < d.Version {
		return nil
	}

	item, err := d.parser.Reparse(context.Background(), d.item, text)
	if err != nil {
		return err
	}
	d.Text = text
	d.Version = version
	d.item = item
	return nil
}

// Parsed returns the current parse result.
func (d *Document) Parsed() *ParsedItem {
	return d.item
}
