// Package testutil provides test helper utilities shared across tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// JuliaProject returns file contents for a minimal Julia project with one
// dependency vendored under deps/.
func JuliaProject(depName, depUUID, depSHA string) map[string]string {
	return map[string]string{
		"Project.toml": `name = "Workspace"

[deps]
` + depName + ` = "` + depUUID + `"
`,
		"Manifest.toml": `julia_version = "1.10.0"
manifest_format = "2.0"

[[deps.` + depName + `]]
git-tree-sha1 = "` + depSHA + `"
uuid = "` + depUUID + `"
version = "0.1.0"
`,
		"deps/" + depName + "/src/" + depName + ".jl": `module ` + depName + `
export greet
function greet(name)
    "hello " * name
end
end
`,
	}
}
