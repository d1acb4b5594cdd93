// Package project parses Julia project and manifest files and resolves
// where each dependency lives on disk.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestEntry is one resolved dependency from Manifest.toml.
type ManifestEntry struct {
	UUID        string `toml:"uuid"`
	Version     string `toml:"version"`
	Path        string `toml:"path"`
	Repo        string `toml:"repo-url"`
	GitTreeSHA1 string `toml:"git-tree-sha1"`
}

// projectFile mirrors Project.toml.
type projectFile struct {
	Name    string            `toml:"name"`
	UUID    string            `toml:"uuid"`
	Version string            `toml:"version"`
	Deps    map[string]string `toml:"deps"`
}

// manifestFile mirrors Manifest.toml format 2.0, where dependencies live
// under the [deps] table. The older format keeps them at top level.
type manifestFile struct {
	ManifestFormat string                     `toml:"manifest_format"`
	Deps           map[string][]ManifestEntry `toml:"deps"`
}

// Context is a parsed Julia project: name, dependencies and where each
// dependency's source lives.
type Context struct {
	RootPath string

	Name    string
	UUID    string
	Version string

	// Dependencies maps direct dependency name -> UUID (Project.toml).
	Dependencies map[string]string

	// Manifest maps dependency name -> its resolved manifest entry.
	Manifest map[string]ManifestEntry

	// PackagePaths maps dependency name -> resolved source directory.
	PackagePaths map[string]string

	// DepotPath is the depot used for canonical package layout lookups.
	DepotPath string
}

// Load parses Project.toml and Manifest.toml under root and resolves the
// package path of every direct dependency. A missing Project.toml is not
// an error: the context is simply empty. depotPath may be "" (no depot).
func Load(root, depotPath string) (*Context, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}

	ctx := &Context{
		RootPath:     root,
		Dependencies: map[string]string{},
		Manifest:     map[string]ManifestEntry{},
		PackagePaths: map[string]string{},
		DepotPath:    depotPath,
	}

	if err := ctx.loadProject(); err != nil {
		return nil, err
	}
	// Manifest.toml is optional; a broken one degrades to depot lookups.
	_ = ctx.loadManifest()

	ctx.resolvePackagePaths()
	return ctx, nil
}

func (c *Context) loadProject() error {
	path := filepath.Join(c.RootPath, "Project.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading Project.toml: %w", err)
	}

	var proj projectFile
	if err := toml.Unmarshal(data, &proj); err != nil {
		return fmt.Errorf("parsing Project.toml: %w", err)
	}

	c.Name = proj.Name
	c.UUID = proj.UUID
	c.Version = proj.Version
	if proj.Deps != nil {
		c.Dependencies = proj.Deps
	}
	return nil
}

func (c *Context) loadManifest() error {
	path := filepath.Join(c.RootPath, "Manifest.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var manifest manifestFile
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parsing Manifest.toml: %w", err)
	}

	entries := manifest.Deps
	if len(entries) == 0 {
		// Old manifest format: arrays of tables at top level.
		var legacy map[string][]ManifestEntry
		if err := toml.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("parsing legacy Manifest.toml: %w", err)
		}
		entries = legacy
	}

	for name, versions := range entries {
		if len(versions) == 0 {
			continue
		}
		c.Manifest[name] = versions[0]
	}
	return nil
}

// resolvePackagePaths resolves each direct dependency by, in order:
// explicit manifest path, local deps/<name>, canonical depot layout.
func (c *Context) resolvePackagePaths() {
	for name := range c.Dependencies {
		if path, ok := c.resolveOne(name); ok {
			c.PackagePaths[name] = path
		}
	}
}

func (c *Context) resolveOne(name string) (string, bool) {
	entry, inManifest := c.Manifest[name]

	// (i) Explicit development path in the manifest.
	if inManifest && entry.Path != "" {
		path := entry.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.RootPath, path)
		}
		if dirExists(path) {
			return path, true
		}
	}

	// (ii) Local deps/<name>.
	local := filepath.Join(c.RootPath, "deps", name)
	if dirExists(local) {
		return local, true
	}

	// (iii) Depot canonical layout: <depot>/packages/<Name>/<slug>.
	if c.DepotPath != "" && inManifest && entry.UUID != "" && entry.GitTreeSHA1 != "" {
		slug, err := ComputeSlug(entry.UUID, entry.GitTreeSHA1)
		if err == nil {
			path := filepath.Join(c.DepotPath, "packages", name, slug)
			if dirExists(path) {
				return path, true
			}
		}
		// Slug mismatch (different hashing era): fall back to the sole
		// installed version, if exactly one exists.
		versions := filepath.Join(c.DepotPath, "packages", name)
		if entries, err := os.ReadDir(versions); err == nil && len(entries) == 1 && entries[0].IsDir() {
			return filepath.Join(versions, entries[0].Name()), true
		}
	}

	return "", false
}

// DirectDependencies returns the direct dependency names, resolution
// status aside.
func (c *Context) DirectDependencies() []string {
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	return names
}

// InManifest reports whether name resolves through the manifest, i.e. it
// is installed even if not indexed.
func (c *Context) InManifest(name string) bool {
	_, ok := c.Manifest[name]
	return ok
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
