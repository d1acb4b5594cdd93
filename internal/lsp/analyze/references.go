// references.go records every identifier occurrence for find-references
// and for guarding the undefined-identifier diagnostic.
package analyze

import (
	"fmt"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// collectReferences walks all identifiers. An identifier is a definition
// occurrence when its range matches a symbol extracted earlier.
func collectReferences(root parse.Node, result *index.AnalysisResult) {
	defRanges := map[string]bool{}
	for _, sym := range result.Symbols {
		defRanges[rangeKey(sym.Name, sym.Range)] = true
	}

	root.Walk(func(node parse.Node) bool {
		if node.Type() != nodeIdentifier {
			return true
		}
		name := node.Text()
		if name == "" {
			return true
		}
		result.References = append(result.References, index.Reference{
			Name:         name,
			Range:        node.Range(),
			IsDefinition: defRanges[rangeKey(name, node.Range())],
		})
		return true
	})
}

func rangeKey(name string, r protocol.Range) string {
	return fmt.Sprintf("%s@%d:%d-%d:%d", name,
		r.Start.Line, r.Start.Character, r.End.Line, r.End.Character)
}
