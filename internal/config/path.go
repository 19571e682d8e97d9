// Package config holds small configuration helpers shared by the CLI.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a configured file path: a leading ~ becomes the
// user's home directory and $VAR references are taken from the
// environment. Anything that cannot be resolved is left as written.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
