//go:build windows

package process

import "fmt"

// pipeName returns a per-session named-pipe path.
func pipeName(session, direction string) string {
	return fmt.Sprintf(`\\.\pipe\vesper-%s-%s`, session, direction)
}
