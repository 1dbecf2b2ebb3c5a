package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateName enforces the path-safe workspace name invariant: no path
// separators, no parent-directory references, no leading dot, not empty.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name must not be empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("workspace name %q must not contain '..'", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("workspace name %q must not contain path separators", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("workspace name %q must not start with '.'", name)
	}
	return nil
}

// ResolvePath resolves a caller-supplied path against root, rejecting any
// attempt to escape it. Relative paths are joined against root; existing
// targets are canonicalised via EvalSymlinks; not-yet-existing targets are
// canonicalised against their nearest existing ancestor. Any literal `..`
// path component is rejected outright, matching the spec's path-safety
// contract independent of symlink resolution.
func ResolvePath(root, path string) (string, error) {
	if containsDotDot(path) {
		return "", fmt.Errorf("path traversal detected: %q contains '..'", path)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Join(root, path)
	}

	resolved, err := canonicalize(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rootResolved, err := canonicalize(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q is outside workspace root", path)
	}

	return resolved, nil
}

func containsDotDot(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// canonicalize resolves symlinks on the nearest existing ancestor of path,
// so that callers can path-safety-check targets that do not exist yet.
func canonicalize(path string) (string, error) {
	path = filepath.Clean(path)
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)
	if dir == path {
		// reached filesystem root without finding an existing ancestor
		return path, nil
	}
	resolvedDir, err := canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
