package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// ExportsDirName is the directory under the base dir that always accepts
// export and import files.
const ExportsDirName = "exports"

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// PathPolicy decides which backup files import/export may touch.
type PathPolicy struct {
	ExportsDir   string   // always allowed
	AllowedPaths []string // extra absolute directories
	AllowUnsafe  bool     // skip directory checks; symlink and extension checks remain
}

// NewPathPolicy builds the policy for baseDir (usually ~/.draftkeep) and cfg.
func NewPathPolicy(cfg *config.Config, baseDir string) PathPolicy {
	p := PathPolicy{ExportsDir: filepath.Join(baseDir, ExportsDirName)}
	if cfg != nil {
		p.AllowedPaths = cfg.AllowedPaths
		p.AllowUnsafe = cfg.AllowUnsafePaths
	}
	return p
}

// Check validates path for mode:
//   - no ".." components
//   - .jsonl extension
//   - the file sits directly in an allowed directory, never a subdirectory,
//     so no intermediate component can be swapped for a symlink after the check
//   - neither the parent directory nor the file is a symlink
//
// The final component is additionally opened with O_NOFOLLOW.
func (p PathPolicy) Check(path string, mode PathCheckMode) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if !p.AllowUnsafe {
		allowed, err := p.allowedDirs()
		if err != nil {
			return err
		}
		parent := filepath.Dir(absPath)
		if !inDir(parent, allowed) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", allowed))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewNotFound(path)
		}
	}
	if isSymlink(absPath) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// allowedDirs returns the absolute allowed directories, resolving any that
// are themselves symlinks so they match the real parent.
func (p PathPolicy) allowedDirs() ([]string, error) {
	dirs := []string{p.ExportsDir}
	for _, d := range p.AllowedPaths {
		if filepath.IsAbs(d) {
			dirs = append(dirs, d)
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func inDir(parent string, dirs []string) bool {
	parent = filepath.Clean(parent)
	for _, d := range dirs {
		if parent == filepath.Clean(d) {
			return true
		}
	}
	return false
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// containsTraversal reports whether any component of path is "..",
// splitting on both the OS separator and '/'.
func containsTraversal(path string) bool {
	split := func(r rune) bool { return r == '/' || r == filepath.Separator }
	for _, part := range strings.FieldsFunc(path, split) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a file name: separators and
// ".." become dashes, control characters are dropped, runs of dashes collapse.
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
