package file

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ or ~name and cleans the result. Paths
// that cannot be resolved are returned cleaned but otherwise untouched.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] != '~' {
		return filepath.Clean(path)
	}
	name, rest, _ := strings.Cut(path[1:], "/")
	var home string
	if name == "" {
		home, _ = os.UserHomeDir()
	} else if u, err := user.Lookup(name); err == nil {
		home = u.HomeDir
	}
	if home == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(home, rest)
}
