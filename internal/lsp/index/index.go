package index

import (
	"sort"
	"strings"
	"sync"
)

// Index is the merged store of symbols, signatures, types, exports,
// scopes and references. All mutation happens through MergeFile / Merge /
// PromoteSubmoduleFunctions; lookups return copies safe to hold across
// suspension points.
type Index struct {
	mu sync.RWMutex

	// symbols and references are keyed by name.
	symbols    map[string][]Symbol
	references map[string][]Reference

	// signatures and types are keyed by "Module.Name".
	signatures map[string][]Signature
	types      map[string]TypeEntry

	exports ExportSet

	// scopes is keyed by file URI.
	scopes map[string]*ScopeNode

	// moduleFunctions / moduleTypes are keyed by module name.
	moduleFunctions map[string]map[string]bool
	moduleTypes     map[string]map[string]bool
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		symbols:         map[string][]Symbol{},
		references:      map[string][]Reference{},
		signatures:      map[string][]Signature{},
		types:           map[string]TypeEntry{},
		exports:         ExportSet{},
		scopes:          map[string]*ScopeNode{},
		moduleFunctions: map[string]map[string]bool{},
		moduleTypes:     map[string]map[string]bool{},
	}
}

func qualified(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

// MergeFile replaces everything previously contributed by fileURI with
// the given analysis. Merging the same analysis twice yields the same
// state as merging it once.
func (ix *Index) MergeFile(fileURI string, analysis *AnalysisResult) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeFileLocked(fileURI)
	ix.addLocked(fileURI, analysis)
}

// Merge unions other into the index. Per-file contents of other replace
// same-file contents of the receiver.
func (ix *Index) Merge(other *Index) {
	other.mu.RLock()
	files := map[string]bool{}
	for _, syms := range other.symbols {
		for _, sym := range syms {
			files[sym.FileURI] = true
		}
	}
	for uri := range other.scopes {
		files[uri] = true
	}
	other.mu.RUnlock()

	ix.mu.Lock()
	for uri := range files {
		ix.removeFileLocked(uri)
	}
	ix.mu.Unlock()

	other.mu.RLock()
	defer other.mu.RUnlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for name, syms := range other.symbols {
		ix.symbols[name] = append(ix.symbols[name], syms...)
	}
	for name, refs := range other.references {
		ix.references[name] = append(ix.references[name], refs...)
	}
	for key, sigs := range other.signatures {
		ix.signatures[key] = append(ix.signatures[key], sigs...)
	}
	for key, entry := range other.types {
		ix.types[key] = entry
	}
	ix.exports.Merge(other.exports)
	for uri, tree := range other.scopes {
		ix.scopes[uri] = tree
	}
	for module, names := range other.moduleFunctions {
		for name := range names {
			ix.addModuleFunctionLocked(module, name)
		}
	}
	for module, names := range other.moduleTypes {
		for name := range names {
			ix.addModuleTypeLocked(module, name)
		}
	}
}

func (ix *Index) addLocked(fileURI string, analysis *AnalysisResult) {
	for _, sym := range analysis.Symbols {
		sym.FileURI = fileURI
		ix.symbols[sym.Name] = append(ix.symbols[sym.Name], sym)
	}
	for _, ref := range analysis.References {
		ref.FileURI = fileURI
		ix.references[ref.Name] = append(ix.references[ref.Name], ref)
	}
	for _, sig := range analysis.Signatures {
		sig.FileURI = fileURI
		key := qualified(sig.Module, sig.Name)
		ix.signatures[key] = append(ix.signatures[key], sig)
		ix.addModuleFunctionLocked(sig.Module, sig.Name)
	}
	for _, entry := range analysis.Types {
		entry.FileURI = fileURI
		ix.types[qualified(entry.Module, entry.Name)] = entry
		ix.addModuleTypeLocked(entry.Module, entry.Name)
	}
	if analysis.Exports != nil {
		ix.exports.Merge(analysis.Exports)
	}
	if analysis.Scopes != nil {
		ix.scopes[fileURI] = analysis.Scopes
	}
}

func (ix *Index) removeFileLocked(fileURI string) {
	for name, syms := range ix.symbols {
		kept := syms[:0]
		for _, sym := range syms {
			if sym.FileURI != fileURI {
				kept = append(kept, sym)
			}
		}
		if len(kept) == 0 {
			delete(ix.symbols, name)
		} else {
			ix.symbols[name] = kept
		}
	}
	for name, refs := range ix.references {
		kept := refs[:0]
		for _, ref := range refs {
			if ref.FileURI != fileURI {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			delete(ix.references, name)
		} else {
			ix.references[name] = kept
		}
	}
	for key, sigs := range ix.signatures {
		kept := sigs[:0]
		var removed []Signature
		for _, sig := range sigs {
			if sig.FileURI != fileURI {
				kept = append(kept, sig)
			} else {
				removed = append(removed, sig)
			}
		}
		if len(kept) == 0 {
			delete(ix.signatures, key)
			for _, sig := range removed {
				delete(ix.moduleFunctions[sig.Module], sig.Name)
			}
		} else {
			ix.signatures[key] = kept
		}
	}
	for key, entry := range ix.types {
		if entry.FileURI == fileURI {
			delete(ix.types, key)
			delete(ix.moduleTypes[entry.Module], entry.Name)
		}
	}
	delete(ix.scopes, fileURI)
}

func (ix *Index) addModuleFunctionLocked(module, name string) {
	set, ok := ix.moduleFunctions[module]
	if !ok {
		set = map[string]bool{}
		ix.moduleFunctions[module] = set
	}
	set[name] = true
}

func (ix *Index) addModuleTypeLocked(module, name string) {
	set, ok := ix.moduleTypes[module]
	if !ok {
		set = map[string]bool{}
		ix.moduleTypes[module] = set
	}
	set[name] = true
}

// PromoteSubmoduleFunctions registers submodule functions under their
// top-level module so Pkg.foo resolves even when defined in Pkg.Sub.foo.
// Existing top-level overloads are never shadowed.
func (ix *Index) PromoteSubmoduleFunctions() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	promoted := map[string][]Signature{}
	for _, sigs := range ix.signatures {
		for _, sig := range sigs {
			dot := strings.Index(sig.Module, ".")
			if dot < 0 {
				continue
			}
			root := sig.Module[:dot]
			key := qualified(root, sig.Name)
			if _, exists := ix.signatures[key]; exists {
				continue
			}
			clone := sig
			clone.Module = root
			promoted[key] = append(promoted[key], clone)
		}
	}

	for key, sigs := range promoted {
		ix.signatures[key] = append(ix.signatures[key], sigs...)
		for _, sig := range sigs {
			ix.addModuleFunctionLocked(sig.Module, sig.Name)
		}
	}
}

// SymbolsByName returns all symbols with the exact name.
func (ix *Index) SymbolsByName(name string) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Symbol(nil), ix.symbols[name]...)
}

// SymbolsByPrefix returns all symbols whose name begins with prefix,
// sorted by name.
func (ix *Index) SymbolsByPrefix(prefix string) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Symbol
	for name, syms := range ix.symbols {
		if strings.HasPrefix(name, prefix) {
			out = append(out, syms...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SymbolNames returns every distinct symbol name.
func (ix *Index) SymbolNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	names := make([]string, 0, len(ix.symbols))
	for name := range ix.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SymbolsInFile returns all symbols declared in the file.
func (ix *Index) SymbolsInFile(fileURI string) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Symbol
	for _, syms := range ix.symbols {
		for _, sym := range syms {
			if sym.FileURI == fileURI {
				out = append(out, sym)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.Start.Line != out[j].Range.Start.Line {
			return out[i].Range.Start.Line < out[j].Range.Start.Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SignaturesByName returns every overload of name across all modules.
// Used for type inference when the owning module is not known at the
// call site.
func (ix *Index) SignaturesByName(name string) []Signature {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Signature
	for key, sigs := range ix.signatures {
		if key == name || strings.HasSuffix(key, "."+name) {
			out = append(out, sigs...)
		}
	}
	return out
}

// Signatures returns the overloads registered for (module, name).
func (ix *Index) Signatures(module, name string) []Signature {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Signature(nil), ix.signatures[qualified(module, name)]...)
}

// Type returns the type entry for (module, name).
func (ix *Index) Type(module, name string) (TypeEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entry, ok := ix.types[qualified(module, name)]
	return entry, ok
}

// ModuleFunctions returns the function names of a module, sorted.
func (ix *Index) ModuleFunctions(module string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return sortedKeys(ix.moduleFunctions[module])
}

// ModuleTypes returns the type names of a module, sorted.
func (ix *Index) ModuleTypes(module string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return sortedKeys(ix.moduleTypes[module])
}

// HasModule reports whether the module contributed anything to the index.
func (ix *Index) HasModule(module string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.moduleFunctions[module]) > 0 || len(ix.moduleTypes[module]) > 0 {
		return true
	}
	if _, ok := ix.exports[module]; ok {
		return true
	}
	for _, syms := range ix.symbols {
		for _, sym := range syms {
			if sym.Kind == KindModule && sym.Name == module {
				return true
			}
		}
	}
	return false
}

// IsExported reports whether module exports name.
func (ix *Index) IsExported(module, name string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.exports.IsExported(module, name)
}

// Exports returns a copy of the full export set.
func (ix *Index) Exports() ExportSet {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := ExportSet{}
	out.Merge(ix.exports)
	return out
}

// ScopeTree returns the scope tree of a file, or nil.
func (ix *Index) ScopeTree(fileURI string) *ScopeNode {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.scopes[fileURI]
}

// References returns all references to name. includeDeclaration controls
// whether defining occurrences are included.
func (ix *Index) References(name string, includeDeclaration bool) []Reference {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Reference
	for _, ref := range ix.references[name] {
		if !includeDeclaration && ref.IsDefinition {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Stats summarizes index contents for status reporting.
func (ix *Index) Stats() (symbols, signatures, types int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, syms := range ix.symbols {
		symbols += len(syms)
	}
	for _, sigs := range ix.signatures {
		signatures += len(sigs)
	}
	return symbols, signatures, len(ix.types)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
