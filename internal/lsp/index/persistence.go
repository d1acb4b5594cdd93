// persistence.go serializes an Index to JSON and back. The standard
// library cache (base_index.json) and the per-package caches share this
// format; the per-workspace index is never persisted.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// indexData is the on-disk shape of an Index.
type indexData struct {
	Symbols    map[string][]Symbol    `json:"symbols"`
	References map[string][]Reference `json:"references"`
	Signatures map[string][]Signature `json:"signatures"`
	Types      map[string]TypeEntry   `json:"types"`
	Exports    map[string][]string    `json:"exports"`
	Scopes     map[string]*ScopeNode  `json:"scopes"`
}

// Save writes the index as JSON to path, creating parent directories.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	data := indexData{
		Symbols:    ix.symbols,
		References: ix.references,
		Signatures: ix.signatures,
		Types:      ix.types,
		Exports:    map[string][]string{},
		Scopes:     ix.scopes,
	}
	for module, names := range ix.exports {
		data.Exports[module] = sortedKeys(names)
	}
	encoded, err := json.Marshal(data)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// Load reads a JSON index from path.
func Load(path string) (*Index, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var data indexData
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	ix := New()
	if data.Symbols != nil {
		ix.symbols = data.Symbols
	}
	if data.References != nil {
		ix.references = data.References
	}
	if data.Signatures != nil {
		ix.signatures = data.Signatures
	}
	if data.Types != nil {
		ix.types = data.Types
	}
	if data.Scopes != nil {
		ix.scopes = data.Scopes
	}
	for module, names := range data.Exports {
		for _, name := range names {
			ix.exports.Add(module, name)
		}
	}

	// Rebuild the derived per-module sets.
	for _, sigs := range ix.signatures {
		for _, sig := range sigs {
			ix.addModuleFunctionLocked(sig.Module, sig.Name)
		}
	}
	for _, entry := range ix.types {
		ix.addModuleTypeLocked(entry.Module, entry.Name)
	}

	return ix, nil
}
