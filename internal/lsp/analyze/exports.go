// exports.go collects export statements per module. A file may contain
// several modules; exports attach to whichever module encloses them.
package analyze

import (
	"strings"

	"github.com/vesper-sci/vesper/internal/lsp/index"
	"github.com/vesper-sci/vesper/internal/lsp/parse"
)

// collectExports walks export statements and records each exported name
// under its enclosing module.
func collectExports(root parse.Node, defaultModule string, exports index.ExportSet) {
	var walk func(node parse.Node, module string, inModule bool)
	walk = func(node parse.Node, module string, inModule bool) {
		switch node.Type() {
		case nodeModule:
			if name, ok := moduleName(node); ok {
				if inModule {
					module = module + "." + name
				} else {
					module = name
				}
				inModule = true
			}
		case nodeExport:
			for _, child := range node.NamedChildren() {
				name := strings.TrimSpace(child.Text())
				if name == "" || name == "export" {
					continue
				}
				exports.Add(module, name)
			}
			return
		}
		for i := 0; i < node.ChildCount(); i++ {
			walk(node.Child(i), module, inModule)
		}
	}
	walk(root, defaultModule, false)
}
