//go:build windows

package platform

import (
	"log"
	"path/filepath"
	"strings"
)

func init() {
	log.Println("kvasir: Windows native mode activated (pure Go, fsnotify backend)")
}

// LongPathname prefixes absolute drive-letter paths with `\\?\` so reads
// of deeply nested watch targets are not cut off at MAX_PATH.
func LongPathname(path string) string {
	if len(path) < 2 || path[1] != ':' {
		return path
	}
	if !filepath.IsAbs(path) || strings.HasPrefix(path, `\\?\`) {
		return path
	}
	return `\\?\` + filepath.Clean(path)
}
