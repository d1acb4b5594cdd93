//go:build !windows

package process

import (
	"fmt"
	"os"
	"path/filepath"
)

// pipeName returns a per-session unix socket path under the temp dir.
func pipeName(session, direction string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("vesper-%s-%s.sock", session, direction))
}
