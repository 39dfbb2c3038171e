package dirsummary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox violation codes reported back to callers as JSON.
const (
	CodeOutsideSandbox = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeNotFound       = "ERR_PATH_NOT_FOUND"
	CodeNotDirectory   = "ERR_NOT_A_DIRECTORY"
)

// PathError is a machine-readable error body a model can act on.
type PathError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string.
func (e *PathError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// ResolveRoot makes root absolute and resolves symlinks where possible.
// An empty root means the working directory.
func ResolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(%s): %w", root, err)
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	return abs, nil
}

// ResolvePath joins rel onto absRoot and returns an absolute path that is
// guaranteed to stay inside the root. It rejects absolute inputs, parent
// traversal and symlink escapes, and requires the target to be a directory.
func ResolvePath(absRoot, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &PathError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}

	candidate := filepath.Join(absRoot, filepath.Clean(rel))
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	}

	r, err := filepath.Rel(absRoot, candidate)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", &PathError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	}

	fi, err := os.Stat(candidate)
	if err != nil {
		return "", &PathError{Code: CodeNotFound, Message: fmt.Sprintf("%s does not exist", rel)}
	}
	if !fi.IsDir() {
		return "", &PathError{Code: CodeNotDirectory, Message: fmt.Sprintf("%s is not a directory", rel)}
	}
	return candidate, nil
}
