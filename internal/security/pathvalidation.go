// Package security confines files written for API clients and command-line
// flags to directories the operator chose.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDir reports a path that resolves outside every allowed directory.
var ErrOutsideDir = errors.New("path escapes allowed directory")

const maxFilenameLen = 128

// ValidatePathWithinDirectory returns an error unless filePath, once cleaned
// and with symlinks resolved, lies inside dir. filePath need not exist; its
// nearest existing ancestor is resolved instead, so a link planted in a
// parent directory is still caught. dir must exist.
func ValidatePathWithinDirectory(filePath, dir string) error {
	target, err := canonical(filePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filePath, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	root, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not inside %s", ErrOutsideDir, filePath, dir)
	}
	return nil
}

// canonical resolves symlinks in the longest existing prefix of path and
// appends the rest unchanged.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rest := ""
	for cur := abs; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// ValidateExportPath accepts paths under the working directory, the system
// temp directory or any of extraDirs.
func ValidateExportPath(filePath string, extraDirs ...string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	for _, dir := range append([]string{cwd, os.TempDir()}, extraDirs...) {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be under the working or temp directory", ErrOutsideDir, filePath)
}

// SanitizeFilename turns a client-supplied trace name into a safe file
// name. Runs of characters other than ASCII letters, digits, '.', '_' and
// '-' become a single underscore; leading and trailing dots and underscores
// are dropped. An empty result becomes "traces".
func SanitizeFilename(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-')
	})
	out := strings.Join(words, "_")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	out = strings.Trim(out, "._")
	if out == "" {
		return "traces"
	}
	return out
}
