package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext. The leading dot of ext is optional.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}

	return filepath.Join(dir, name+ext)
}

// JoinUnder joins name onto base and reports false if the result escapes base.
func JoinUnder(base, name string) (string, bool) {
	joined := filepath.Join(base, name)
	rel, err := filepath.Rel(base, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
