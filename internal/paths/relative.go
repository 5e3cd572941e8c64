package paths

import (
	"fmt"
	"path"
	"strings"
)

// CleanRelative normalizes a repository-relative path. Absolute paths, paths
// escaping the repository and paths inside .git are rejected; "." names the
// repository root.
func CleanRelative(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty file path")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) {
		return "", fmt.Errorf("absolute path %q not allowed", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the repository", p)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", fmt.Errorf("path %q is inside .git", p)
	}
	return clean, nil
}
